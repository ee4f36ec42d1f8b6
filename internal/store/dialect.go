package store

// Dialect 标记当前连接的数据库方言；upsert 等语法差异按它分支。
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)
