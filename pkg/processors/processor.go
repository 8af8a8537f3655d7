// Package processors преобразует строки экспорта перед записью в файл.
package processors

import "context"

// Processor обрабатывает строки экспорта.
// data - строки в порядке колонок columns; результат должен иметь ту же форму.
type Processor interface {
	// Name возвращает имя процессора
	Name() string

	// Process обрабатывает данные
	Process(ctx context.Context, columns []string, data [][]string) ([][]string, error)
}

// Config - конфигурация процессоров экспорта
type Config struct {
	// Mask - колонка -> шаблон маскирования
	Mask map[string]MaskPattern `yaml:"mask,omitempty"`
}

// FromConfig строит цепочку процессоров; пустая конфигурация дает пустую цепочку
func FromConfig(cfg Config) (*Chain, error) {
	chain := NewChain()
	if len(cfg.Mask) > 0 {
		masker, err := NewFieldMasker(cfg.Mask)
		if err != nil {
			return nil, err
		}
		chain.Add(masker)
	}
	return chain, nil
}
