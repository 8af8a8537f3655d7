package catalog

import (
	"fmt"
	"strings"
	"time"
)

// ParamTimeLayout - формат передачи cutoff/now в запрос
const ParamTimeLayout = "2006-01-02 15:04:05"

// Env - значения для подстановки параметров одного запроса
type Env struct {
	Key        string
	Now        time.Time
	WindowDays int
	Attrs      map[string]any
}

// Cutoff - граница окна давности
func (e Env) Cutoff() time.Time {
	return e.Now.AddDate(0, 0, -e.WindowDays)
}

// Bind возвращает аргументы запроса в порядке Params
func (q SourceQuery) Bind(env Env) ([]any, error) {
	args := make([]any, 0, len(q.Params))
	for _, p := range q.Params {
		switch {
		case p == ParamKey:
			args = append(args, env.Key)
		case p == ParamLike:
			args = append(args, "%"+env.Key+"%")
		case p == ParamCutoff:
			args = append(args, env.Cutoff().Format(ParamTimeLayout))
		case p == ParamNow:
			args = append(args, env.Now.Format(ParamTimeLayout))
		case strings.HasPrefix(p, ParamAttr):
			col := strings.TrimPrefix(p, ParamAttr)
			v, ok := env.Attrs[col]
			if !ok {
				return nil, fmt.Errorf("param %q: attribute not available", p)
			}
			args = append(args, v)
		default:
			return nil, fmt.Errorf("unknown param %q", p)
		}
	}
	return args, nil
}

// DeclaredColumns - позиционные колонки запроса или fallback, если не объявлены
func (q SourceQuery) DeclaredColumns(fallback []string) []string {
	if len(q.Columns) > 0 {
		return q.Columns
	}
	return fallback
}
