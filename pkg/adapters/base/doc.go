// Package base предоставляет общую реализацию клиента источника для всех драйверов
//
// Пакет устраняет дублирование кода между адаптерами (MySQL, PostgreSQL, MS SQL Server, SQLite)
// путем вынесения общей логики выполнения запроса в SQLClient.
//
// # Основные компоненты
//
// SQLClient - выполнение параметризованного запроса:
//   - WithConn() - получение отдельного соединения, выполнение, гарантированное освобождение
//   - Execute() - запрос + сканирование в []adapters.RawRow
//   - Ping(), Close(), GetDatabaseVersion()
//
// BindStyle - переписывание плейсхолдеров "?" под синтаксис СУБД:
//   - BindQuestion: MySQL, SQLite  → ?
//   - BindDollar:   PostgreSQL     → $1, $2
//   - BindAtP:      MS SQL Server  → @p1, @p2
//
// # Жизненный цикл соединения
//
// Пул открывается с MaxIdleConns = 0, поэтому соединение, освобожденное после запроса,
// физически закрывается и не переиспользуется следующим запросом. Ошибка освобождения
// пишется в лог и никогда не подменяет результат или ошибку самого запроса.
//
// # Использование
//
//	type Adapter struct {
//	    *base.SQLClient
//	}
//
//	func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
//	    client, err := base.Open(ctx, "mysql", AdapterType, base.BindQuestion, cfg)
//	    if err != nil {
//	        return err
//	    }
//	    a.SQLClient = client
//	    return nil
//	}
package base
