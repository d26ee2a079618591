package data

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-trading/internal/types"
)

type BarBufferTestSuite struct {
	suite.Suite
	base time.Time
}

func TestBarBufferSuite(t *testing.T) {
	suite.Run(t, new(BarBufferTestSuite))
}

func (suite *BarBufferTestSuite) SetupTest() {
	suite.base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *BarBufferTestSuite) bar(offset time.Duration, isFinal bool) types.Bar {
	return types.Bar{
		Symbol: "AAPL",
		Granularity: "1m",
		Timestamp: suite.base.Add(offset),
		Open: decimal.NewFromInt(100),
		High: decimal.NewFromInt(101),
		Low: decimal.NewFromInt(99),
		Close: decimal.NewFromInt(100),
		Volume: decimal.NewFromInt(10),
		IsFinal: isFinal,
	}
}

func (suite *BarBufferTestSuite) TestInsertAppendsInOrder() {
	b := NewBarBuffer(10)

	ok, err := b.Insert(suite.bar(0, true))
	suite.Require().NoError(err)
	suite.True(ok)

	ok, err = b.Insert(suite.bar(time.Minute, true))
	suite.Require().NoError(err)
	suite.True(ok)

	suite.Equal(2, b.Len())

	tail, ok := b.Tail()
	suite.True(ok)
	suite.True(tail.Timestamp.Equal(suite.base.Add(time.Minute)))
}

func (suite *BarBufferTestSuite) TestInsertRejectsOlderThanTail() {
	b := NewBarBuffer(10)

	_, err := b.Insert(suite.bar(time.Minute, true))
	suite.Require().NoError(err)

	ok, err := b.Insert(suite.bar(0, true))
	suite.Require().NoError(err)
	suite.False(ok)
	suite.Equal(1, b.Len())
}

func (suite *BarBufferTestSuite) TestInsertDropsNonFinalDuplicateOfTail() {
	b := NewBarBuffer(10)

	_, err := b.Insert(suite.bar(0, true))
	suite.Require().NoError(err)

	ok, err := b.Insert(suite.bar(0, false))
	suite.Require().NoError(err)
	suite.False(ok)

	tail, _ := b.Tail()
	suite.True(tail.IsFinal)
}

func (suite *BarBufferTestSuite) TestInsertReplacesTailWhenFinal() {
	b := NewBarBuffer(10)

	partial := suite.bar(0, false)
	partial.Close = decimal.NewFromInt(100)
	_, err := b.Insert(partial)
	suite.Require().NoError(err)

	final := suite.bar(0, true)
	final.Close = decimal.NewFromInt(105)
	final.High = decimal.NewFromInt(106)

	ok, err := b.Insert(final)
	suite.Require().NoError(err)
	suite.True(ok)
	suite.Equal(1, b.Len())

	tail, _ := b.Tail()
	suite.True(tail.Close.Equal(decimal.NewFromInt(105)))
	suite.True(tail.IsFinal)
}

func (suite *BarBufferTestSuite) TestInsertRejectsInvalidBar() {
	b := NewBarBuffer(10)

	bad := suite.bar(0, true)
	bad.Low = decimal.NewFromInt(200)

	_, err := b.Insert(bad)
	suite.Error(err)
	suite.Equal(0, b.Len())
}

func (suite *BarBufferTestSuite) TestInsertEvictsOldestPastCapacity() {
	b := NewBarBuffer(2)

	for i := 0; i < 3; i++ {
		_, err := b.Insert(suite.bar(time.Duration(i)*time.Minute, true))
		suite.Require().NoError(err)
	}

	suite.Equal(2, b.Len())

	tail, _ := b.Tail()
	suite.True(tail.Timestamp.Equal(suite.base.Add(2 * time.Minute)))
}

func (suite *BarBufferTestSuite) TestSnapshotReturnsErrNotReadyBelowLookback() {
	b := NewBarBuffer(10)
	_, err := b.Insert(suite.bar(0, true))
	suite.Require().NoError(err)

	_, err = b.Snapshot(2)
	suite.ErrorIs(err, ErrNotReady)
}

func (suite *BarBufferTestSuite) TestSnapshotReturnsChronologicalWindow() {
	b := NewBarBuffer(10)

	for i := 0; i < 3; i++ {
		_, err := b.Insert(suite.bar(time.Duration(i)*time.Minute, true))
		suite.Require().NoError(err)
	}

	bars, err := b.Snapshot(2)
	suite.Require().NoError(err)
	suite.Require().Len(bars, 2)
	suite.True(bars[0].Timestamp.Before(bars[1].Timestamp))
	suite.True(bars[1].Timestamp.Equal(suite.base.Add(2 * time.Minute)))
}

func (suite *BarBufferTestSuite) TestSnapshotMaxCapsToAvailable() {
	b := NewBarBuffer(10)
	_, err := b.Insert(suite.bar(0, true))
	suite.Require().NoError(err)

	bars := b.SnapshotMax(5)
	suite.Len(bars, 1)
}

func (suite *BarBufferTestSuite) TestGrowToOnlyIncreasesCapacity() {
	b := NewBarBuffer(5)
	b.GrowTo(2)
	suite.Equal(5, b.Capacity())

	b.GrowTo(10)
	suite.Equal(10, b.Capacity())
}

func (suite *BarBufferTestSuite) TestGapExceedsUsesInjectedNow() {
	b := NewBarBuffer(10)
	_, err := b.Insert(suite.bar(0, true))
	suite.Require().NoError(err)

	suite.False(b.GapExceeds(suite.base.Add(time.Minute), time.Minute, 3*time.Minute))
	suite.True(b.GapExceeds(suite.base.Add(10*time.Minute), time.Minute, 3*time.Minute))
}

func (suite *BarBufferTestSuite) TestGapExceedsFalseWhenEmpty() {
	b := NewBarBuffer(10)
	suite.False(b.GapExceeds(suite.base, time.Minute, 3*time.Minute))
}
