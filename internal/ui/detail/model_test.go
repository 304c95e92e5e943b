package detail

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/pipeline"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  hello there \r\n", "hello there"},
		{"paragraphs", "<p>Hello &amp; welcome</p><p>Bye</p>", "Hello & welcome\nBye"},
		{"scripts dropped", "<html><head><title>t</title></head><body><script>alert(1)</script>hi</body></html>", "hi"},
		{"styles dropped", "<style>p{color:red}</style><div>x</div>", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plainText(tt.in))
		})
	}
}

func newTestModel() Model {
	return New(keys.DefaultKeyMap(), pipeline.DefaultCategoryTable(), 80, 24)
}

func TestUpdate_LoadedMessage(t *testing.T) {
	m := newTestModel()
	m.SetLoading(true)
	assert.Contains(t, m.View(), "Loading message")

	m, _ = m.Update(LoadedMsg{ID: "1", Message: model.Message{ID: "1", Subject: "Quarterly report", IsUnread: true}})
	assert.Contains(t, m.View(), "Quarterly report")
}

func TestUpdate_LoadError(t *testing.T) {
	m := newTestModel()
	m.SetLoading(true)

	m, _ = m.Update(LoadedMsg{ID: "1", Err: errors.New("boom")})
	assert.Contains(t, m.View(), "boom")
}

func TestMarkRead_OnlyForUnread(t *testing.T) {
	m := newTestModel()
	m.SetMessage(model.Message{ID: "1", IsUnread: true})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	if assert.NotNil(t, cmd) {
		assert.Equal(t, MarkReadMsg{ID: "1"}, cmd())
	}

	m.MarkedRead("1")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	assert.Nil(t, cmd)
}
