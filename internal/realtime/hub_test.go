package realtime

import (
	"testing"

	"example.com/morghi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notice(gameID string, t model.NoticeType) model.Notice {
	return model.NewNotice(t, gameID, model.PlayerRef{Player: "A"})
}

func TestHub_PublishDeliversToGameSubscribers(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("g1", "A")
	b := h.Subscribe("g1", "B")
	other := h.Subscribe("g2", "A")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)
	defer h.Unsubscribe(other)

	h.Publish(notice("g1", model.NoticeTurn))

	assert.Equal(t, model.NoticeTurn, (<-a.C).Type)
	assert.Equal(t, model.NoticeTurn, (<-b.C).Type)
	assert.Empty(t, other.C)
}

func TestHub_RecipientScopedNotices(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("g1", "A")
	b := h.Subscribe("g1", "B")
	anon := h.Subscribe("g1", "")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)
	defer h.Unsubscribe(anon)

	h.Publish(model.NewNotice(model.NoticeHand, "g1", model.HandPayload{Player: "B"}).To("B"))

	assert.Empty(t, a.C)
	assert.Empty(t, anon.C)
	got := <-b.C
	assert.Equal(t, model.NoticeHand, got.Type)
	assert.Equal(t, "B", got.Recipient)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe("g1", "A")
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	assert.False(t, sub.Lagged())
	assert.Equal(t, 0, h.Subscribers("g1"))
}

func TestHub_LaggingSubscriberIsDropped(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe("g1", "A")
	fast := h.Subscribe("g1", "B")

	for i := 0; i < 3; i++ {
		h.Publish(notice("g1", model.NoticeState))
		<-fast.C
	}

	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, 2, n)
	require.True(t, slow.Lagged())
	assert.Equal(t, 1, h.Subscribers("g1"))
	h.Unsubscribe(fast)
}
