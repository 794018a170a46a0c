// Package receipts 异步跟踪已广播交易的回执。发送交易后记录 ID 被投递到队列
// (内存、Redis 或 RabbitMQ)，Tracker 消费队列、等待回执并更新操作记录。
package receipts
