// Package statement renders the XML card statement of a user.
package statement

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/oindividum/bankcards-service/internal/models"
)

// ContentType of a rendered statement.
const ContentType = "application/xml; charset=utf-8"

// Render builds the statement document for owner's cards. Card numbers
// appear masked only, as they come in the views.
func Render(owner models.UserView, cards []models.CardView, generatedAt time.Time) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("CardStatement")
	root.CreateAttr("generatedAt", generatedAt.UTC().Format(time.RFC3339))

	holder := root.CreateElement("Owner")
	holder.CreateAttr("id", strconv.FormatInt(owner.ID, 10))
	holder.CreateElement("Username").SetText(owner.Username)

	list := root.CreateElement("Cards")
	list.CreateAttr("count", strconv.Itoa(len(cards)))

	total := decimal.Zero
	for _, c := range cards {
		bal, err := decimal.NewFromString(c.Balance)
		if err != nil {
			return nil, fmt.Errorf("card %d: invalid balance %q: %w", c.ID, c.Balance, err)
		}
		if c.Status == models.CardActive {
			total = total.Add(bal)
		}

		el := list.CreateElement("Card")
		el.CreateAttr("id", strconv.FormatInt(c.ID, 10))
		el.CreateAttr("status", string(c.Status))
		el.CreateElement("Number").SetText(c.MaskedNumber)
		el.CreateElement("Holder").SetText(c.HolderName)
		el.CreateElement("Expiry").SetText(c.ExpiryDate)
		el.CreateElement("Balance").SetText(bal.StringFixed(2))
	}
	root.CreateElement("AvailableTotal").SetText(total.StringFixed(2))

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to write statement: %w", err)
	}
	return out, nil
}
