// Package journal 记录钱包操作的审计轨迹，并为已广播的交易保存待确认状态。
package journal
