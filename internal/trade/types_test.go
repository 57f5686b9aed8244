package trade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradebook-core/internal/refdata"
)

func TestLegKind(t *testing.T) {
	assert.Equal(t, LegFixed, LegInput{LegType: refdata.ByName("fixed")}.Kind())
	assert.Equal(t, LegFloating, LegInput{LegType: refdata.ByName("Floating")}.Kind())
	assert.Equal(t, LegFloating, LegInput{LegType: refdata.ByName("FLOAT")}.Kind())
	assert.Equal(t, LegUnknown, LegInput{LegType: refdata.ByID(1)}.Kind())
}

func TestLastCashflowDate(t *testing.T) {
	d1 := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	leg := LegInput{Cashflows: []CashflowInput{{ValueDate: d2}, {ValueDate: d1}}}
	assert.Equal(t, d2, leg.LastCashflowDate())
	assert.True(t, LegInput{}.LastCashflowDate().IsZero())
}
