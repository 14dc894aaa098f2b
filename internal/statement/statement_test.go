package statement

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oindividum/bankcards-service/internal/models"
)

func TestRender(t *testing.T) {
	owner := models.UserView{ID: 3, Username: "alice", Role: models.RoleUser}
	cards := []models.CardView{
		{ID: 1, MaskedNumber: "**** **** **** 1111", HolderName: "ALICE", ExpiryDate: "2028-10-19", Status: models.CardActive, Balance: "70.00"},
		{ID: 2, MaskedNumber: "**** **** **** 2222", HolderName: "ALICE", ExpiryDate: "2028-10-19", Status: models.CardActive, Balance: "30.5"},
		{ID: 4, MaskedNumber: "**** **** **** 4444", HolderName: "ALICE", ExpiryDate: "2027-01-01", Status: models.CardBlocked, Balance: "9.99"},
	}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	out, err := Render(owner, cards, at)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))

	root := doc.SelectElement("CardStatement")
	require.NotNil(t, root)
	assert.Equal(t, "2026-10-19T12:00:00Z", root.SelectAttrValue("generatedAt", ""))
	assert.Equal(t, "alice", root.FindElement("Owner/Username").Text())
	assert.Equal(t, "3", root.FindElement("Cards").SelectAttrValue("count", ""))

	nums := root.FindElements("Cards/Card/Number")
	require.Len(t, nums, 3)
	assert.Equal(t, "**** **** **** 2222", nums[1].Text())
	assert.Equal(t, "30.50", root.FindElement("Cards/Card[@id='2']/Balance").Text())
	assert.Equal(t, "BLOCKED", root.FindElement("Cards/Card[@id='4']").SelectAttrValue("status", ""))
	assert.Equal(t, "100.50", root.FindElement("AvailableTotal").Text())
}

func TestRender_Empty(t *testing.T) {
	out, err := Render(models.UserView{ID: 1, Username: "bob"}, nil, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(out), "<AvailableTotal>0.00</AvailableTotal>")
}

func TestRender_BadBalance(t *testing.T) {
	_, err := Render(models.UserView{}, []models.CardView{{ID: 9, Balance: "lots"}}, time.Now())
	assert.ErrorContains(t, err, "invalid balance")
}
