package store

// USDScale 与 DB 精度对齐：所有 USD 金额最终截断到 6 位小数。
const USDScale = int32(6)
