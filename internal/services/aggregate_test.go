package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sale(rep, total, po string) models.Record {
	return models.Record{SalesRep: rep, Total: amount(total), PONumber: po}
}

func dataset(records ...models.Record) *models.Dataset {
	return &models.Dataset{
		ID:      "test",
		Profile: "test",
		Fields:  []models.Field{models.FieldSalesRep, models.FieldPONumber, models.FieldTotal},
		Records: records,
	}
}

func keys(r models.AggregateResult) []string {
	out := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Key
	}
	return out
}

func TestAggregate_DropsIncompleteRowsFirst(t *testing.T) {
	ds := dataset(
		sale("A", "100", "111"),
		sale("B", "0", "222"),
		models.Record{SalesRep: "A", Total: amount("50")},
	)

	result := Aggregate(DropIncomplete(ds), GroupSpec{By: models.FieldSalesRep, Details: true})

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, "A", g.Key)
	assert.True(t, g.Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "$100.00", g.FormattedTotal)
	assert.Equal(t, "PO Number: 111", g.Detail)
	assert.Equal(t, "100.00%", g.FormattedPercentage)
}

func TestAggregate_ThresholdMergesIntoOthers(t *testing.T) {
	ds := dataset(
		sale("X", "80", "1"),
		sale("Y", "15", "2"),
		sale("Z", "5", "3"),
	)

	result := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, ThresholdPct: decimal.NewFromInt(50)})

	assert.Equal(t, []string{"X"}, keys(result))
	assert.True(t, result.Groups[0].Percentage.Equal(decimal.NewFromInt(80)))

	require.NotNil(t, result.Others)
	assert.Equal(t, models.OthersKey, result.Others.Key)
	assert.True(t, result.Others.Synthetic)
	assert.True(t, result.Others.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "20.00%", result.Others.FormattedPercentage)
	assert.Equal(t, 2, result.Others.Rows)

	assert.True(t, result.Total().Equal(result.GrandTotal), "merge keeps the total")
}

func TestAggregate_ThresholdNothingBelow(t *testing.T) {
	ds := dataset(sale("X", "60", "1"), sale("Y", "40", "2"))

	result := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, ThresholdPct: decimal.NewFromInt(5)})

	assert.Equal(t, []string{"X", "Y"}, keys(result))
	assert.Nil(t, result.Others)
}

func TestAggregate_ConservesTotal(t *testing.T) {
	ds := dataset(
		sale("B", "10.10", "1"),
		sale("A", "0.20", "2"),
		sale("C", "-3.05", "3"),
		sale("A", "1234.567", "4"),
		sale("B", "0.01", "5"),
	)

	result := Aggregate(ds, GroupSpec{By: models.FieldSalesRep})

	assert.True(t, result.Total().Equal(GrandTotal(ds)))
	assert.Equal(t, "1241.827", result.GrandTotal.String())
	assert.Equal(t, []string{"A", "B", "C"}, keys(result), "default order is by key")

	a, ok := result.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, "1234.767", a.Total.String())
	assert.Equal(t, "$1,234.77", a.FormattedTotal)
}

func TestAggregate_TopN(t *testing.T) {
	ds := dataset(
		sale("A", "10", "1"),
		sale("B", "30", "2"),
		sale("C", "20", "3"),
		sale("D", "30", "4"),
	)

	full := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, Order: OrderTotal})
	assert.Equal(t, []string{"B", "D", "C", "A"}, keys(full), "ties keep key order")

	top := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, TopN: 2})
	assert.Equal(t, []string{"B", "D"}, keys(top))
	assert.Equal(t, full.Groups[:2], top.Groups)

	for _, g := range top.Groups {
		_, ok := full.Lookup(g.Key)
		assert.True(t, ok)
	}

	all := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, TopN: 10})
	assert.Len(t, all.Groups, 4)
}

func TestAggregate_ZeroGrandTotal(t *testing.T) {
	ds := dataset(sale("A", "10", "1"), sale("B", "-10", "2"))

	result := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, ThresholdPct: decimal.NewFromInt(50)})

	require.Len(t, result.Groups, 2)
	assert.Nil(t, result.Others)
	for _, g := range result.Groups {
		assert.True(t, g.Percentage.IsZero())
		assert.Equal(t, "0.00%", g.FormattedPercentage)
	}
	assert.Equal(t, "-$10.00", result.Groups[1].FormattedTotal)
}

func TestAggregate_HideZeroQuantity(t *testing.T) {
	ds := dataset(
		models.Record{CFN: "C1", PONumber: "1", Total: amount("10"), Quantity: 2},
		models.Record{CFN: "C2", PONumber: "2", Total: amount("30"), Quantity: 0},
		models.Record{CFN: "C3", PONumber: "3", Total: amount("20"), Quantity: 5},
	)

	result := Aggregate(ds, GroupSpec{By: models.FieldCFN, Order: OrderTotal, HideZeroQuantity: true})

	assert.Equal(t, []string{"C3", "C1"}, keys(result))
	assert.Equal(t, int64(7), result.GrandQuantity)
	assert.True(t, result.GrandTotal.Equal(decimal.NewFromInt(60)))
}

func TestAggregate_DetailsListDistinctPOs(t *testing.T) {
	ds := dataset(
		sale("A", "1", "111"),
		sale("A", "2", "222"),
		sale("A", "3", "111"),
	)

	with := Aggregate(ds, GroupSpec{By: models.FieldSalesRep, Details: true})
	assert.Equal(t, "PO Number: 111<br>PO Number: 222", with.Groups[0].Detail)
	assert.Equal(t, []string{"111", "222"}, with.Groups[0].PONumbers)

	without := Aggregate(ds, GroupSpec{By: models.FieldSalesRep})
	assert.Empty(t, without.Groups[0].Detail)
	assert.Nil(t, without.Groups[0].PONumbers)
}

func TestAggregate_Empty(t *testing.T) {
	result := Aggregate(dataset(), GroupSpec{By: models.FieldSalesRep})

	assert.True(t, result.Empty)
	assert.Empty(t, result.Groups)
	assert.True(t, result.GrandTotal.IsZero())
	assert.Equal(t, "$0.00", result.FormattedGrandTotal)
}
