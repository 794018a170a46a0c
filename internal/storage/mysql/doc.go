// Package mysql 提供基于 MySQL 的钱包操作日志存储，包含连接池配置与内嵌的
// schema 迁移。
package mysql
