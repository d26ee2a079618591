package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-trading/internal/types"
)

// DataGenerator generates realistic bar data for testing providers,
// evaluators, and the Data Manager without a network dependency.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bar data is generated.
type GeneratorConfig struct {
	Symbol string
	Granularity string
	StartTime time.Time
	Interval time.Duration
	Count int
	InitialPrice float64
	Volatility float64 // 0.01 = 1% typical per-bar volatility
	Trend float64 // drift factor, -0.01 to 0.01 for bearish to bullish
	VolumeBase float64
	VolumeVariance float64 // 0.0 to 1.0
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol: "TEST",
		Granularity: "1m",
		StartTime: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Interval: time.Minute,
		Count: 10000,
		InitialPrice: 100.0,
		Volatility: 0.002,
		Trend: 0.0,
		VolumeBase: 10000,
		VolumeVariance: 0.3,
	}
}

// Generate creates a slice of Bars following a geometric Brownian motion
// price model, oldest first.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := currentPrice

		// Box-Muller transform for a normally distributed price move.
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		priceChange := config.Volatility * z
		drift := config.Trend / float64(config.Count)

		closePrice := open * (1 + priceChange + drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, closePrice) + highExtension
		low := math.Min(open, closePrice) - lowExtension
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance
		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Bar{
			Symbol: config.Symbol,
			Granularity: config.Granularity,
			Timestamp: currentTime,
			Open: decimal.NewFromFloat(roundToDecimals(open, 4)),
			High: decimal.NewFromFloat(roundToDecimals(high, 4)),
			Low: decimal.NewFromFloat(roundToDecimals(low, 4)),
			Close: decimal.NewFromFloat(roundToDecimals(closePrice, 4)),
			Volume: decimal.NewFromFloat(roundToDecimals(volume, 2)),
			IsFinal: true,
		}

		currentPrice = closePrice
		currentTime = currentTime.Add(config.Interval)
	}

	return bars
}

// GenerateMultiSymbol generates bars for multiple symbols, each with a
// slightly perturbed starting price and volatility.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []types.Bar {
	var all []types.Bar

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		all = append(all, g.Generate(config)...)
	}

	return all
}

// Generate10K is a convenience function to generate 10,000 bars with
// default settings for benchmarking.
func Generate10K(symbol string) []types.Bar {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = symbol
	config.Count = 10000

	return gen.Generate(config)
}

// Generate10KMultiSymbol generates 10,000 bars for each symbol.
func Generate10KMultiSymbol(symbols []string) []types.Bar {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 10000

	return gen.GenerateMultiSymbol(symbols, config)
}

func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
