// Package api 通过 REST 接口暴露钱包操作：签名、发送交易、等待回执，
// 以及操作记录查询。所有 /api 路由可选地受静态令牌保护。
package api
