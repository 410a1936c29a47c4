// 测试数据工厂：幻灯片、参会者与 webhook 事件。
package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/internal/slides"
)

// Deck 生成 n 页幻灯片，页码从 1 开始
func Deck(presentationID string, n int) []slides.Slide {
	deck := make([]slides.Slide, 0, n)
	for i := 1; i <= n; i++ {
		deck = append(deck, slides.Slide{
			ID:             fmt.Sprintf("%s-%d", presentationID, i),
			PresentationID: presentationID,
			SlideNumber:    i,
			ImageURL:       fmt.Sprintf("https://cdn.example.com/%s/%d.png", presentationID, i),
			ExtractedText:  fmt.Sprintf("Slide %d content for %s", i, presentationID),
		})
	}
	return deck
}

// Audience 携带 presentation_id 元数据的观众
func Audience(identity, presentationID string) livekit.Participant {
	meta, _ := json.Marshal(map[string]string{"presentation_id": presentationID})
	return livekit.Participant{
		SID:      "PA_" + identity,
		Identity: identity,
		State:    "ACTIVE",
		Kind:     livekit.KindStandard,
		Metadata: string(meta),
	}
}

// Agent 代理参会者
func Agent(identity string) livekit.Participant {
	return livekit.Participant{
		SID:      "PA_" + identity,
		Identity: identity,
		State:    "ACTIVE",
		Kind:     livekit.KindAgent,
	}
}

// WebhookBody 生成 webhook 请求体
func WebhookBody(event, room string, participant *livekit.Participant) []byte {
	ev := livekit.WebhookEvent{
		ID:          "EV_" + event,
		Event:       event,
		Room:        &livekit.Room{Name: room},
		Participant: participant,
	}
	data, _ := json.Marshal(ev)
	return data
}
