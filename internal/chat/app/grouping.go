package app

import "chat_room_client/internal/chat/domain"

// GroupGap 同一 sender 連續訊息間隔小於此值時合併顯示
const GroupGap int64 = 60000

// GroupMessages header flags per message; a run breaks on sender change
// or when the gap from the previous message reaches GroupGap (unresolved timestamp = 0)
func GroupMessages(msgs []domain.Message) []domain.MessageView {
	views := make([]domain.MessageView, len(msgs))
	for i, m := range msgs {
		views[i].Message = m
		if i == 0 {
			views[i].ShowHeader = true
			continue
		}
		prev := msgs[i-1]
		views[i].ShowHeader = m.SenderID != prev.SenderID ||
			m.TimestampMillis()-prev.TimestampMillis() >= GroupGap
	}
	return views
}
