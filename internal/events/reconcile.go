package events

import (
	"sort"

	"hydro-events/internal/domain"
)

// Reconcile 客户端重连对账规则
// 丢弃 server_ts 小于快照 server_ts 的缓冲推送消息（已反映在快照中），
// 其余按 event_id 升序返回，供在快照之上依次应用。
// server_ts == 快照时间戳的事件保留：宁可重放一条（客户端幂等应用）也不丢事件
func Reconcile(snapshotTS uint64, buffered []*domain.Envelope) []*domain.Envelope {
	apply := make([]*domain.Envelope, 0, len(buffered))
	for _, env := range buffered {
		if env == nil {
			continue
		}
		if env.ServerTS >= snapshotTS {
			apply = append(apply, env)
		}
	}

	sort.Slice(apply, func(i, j int) bool {
		return apply[i].EventID < apply[j].EventID
	})

	return apply
}
