package emailsvc

import (
	"io/ioutil"
	"log"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	logsvc "github.com/trezcool/feeledger/services/logger"
)

func Test_sendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf))

	t.Run("receipt", func(t *testing.T) {
		m := svc.prepare(core.EmailMessage{
			To:          []mail.Address{{Name: "Neema Juma", Address: "neema@family.test"}},
			Subject:     "Payment receipt RCT/AY-2025-26/000001",
			Categories:  []string{"payment-receipt"},
			Args:        map[string]string{"receipt_no": "RCT/AY-2025-26/000001", "payment_id": "p-1"},
			TextContent: "Receipt RCT/AY-2025-26/000001",
			HTMLContent: "<p>Receipt RCT/AY-2025-26/000001</p>",
		})

		require.Len(t, m.Personalizations, 1)
		assert.Equal(t, "[Masomo Fees] Payment receipt RCT/AY-2025-26/000001", m.Personalizations[0].Subject)
		require.Len(t, m.Personalizations[0].To, 1)
		assert.Equal(t, "neema@family.test", m.Personalizations[0].To[0].Address)
		assert.Equal(t, []string{"payment-receipt"}, m.Categories)
		assert.Equal(t, map[string]string{"receipt_no": "RCT/AY-2025-26/000001", "payment_id": "p-1"}, m.CustomArgs)
		require.Len(t, m.Content, 2)
		assert.Equal(t, "text/plain", m.Content[0].Type)
		assert.Equal(t, "text/html", m.Content[1].Type)
	})

	t.Run("plain text only", func(t *testing.T) {
		m := svc.prepare(core.EmailMessage{
			To:          []mail.Address{{Address: "bursar@school.test"}},
			Subject:     "Daily collections",
			TextContent: "nothing collected",
		})

		assert.Empty(t, m.Categories)
		assert.Empty(t, m.CustomArgs)
		require.Len(t, m.Content, 1)
		assert.Equal(t, "text/plain", m.Content[0].Type)
	})
}

func Test_argsExtras(t *testing.T) {
	extras := argsExtras(core.EmailMessage{
		Categories: []string{"payment-receipt"},
		Args:       map[string]string{"receipt_no": "RCT/AY-2025-26/000001"},
	})
	assert.Equal(t, map[string]interface{}{
		"receipt_no": "RCT/AY-2025-26/000001",
		"categories": []string{"payment-receipt"},
	}, extras)

	assert.Empty(t, argsExtras(core.EmailMessage{}))
}
