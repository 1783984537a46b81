// Package utils provides shared numeric and signing helpers for the Brain.
package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// SignHMAC computes the hex-encoded HMAC-SHA256 of
// "timestampMs|nonce|payload" using the shared secret, per the ingress
// signature scheme.
func SignHMAC(secret []byte, timestampMs int64, nonce string, payload []byte) string {
	message := fmt.Sprintf("%d|%s|%s", timestampMs, nonce, payload)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC recomputes the expected signature and compares it to sig in
// constant time.
func VerifyHMAC(secret []byte, timestampMs int64, nonce string, payload []byte, sig string) bool {
	expected := SignHMAC(secret, timestampMs, nonce, payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

// PearsonCorrelation computes the Pearson correlation coefficient between
// two equal-length return series. Returns 0 if either series has zero
// variance or the series differ in length.
func PearsonCorrelation(a, b []decimal.Decimal) decimal.Decimal {
	n := len(a)
	if n == 0 || n != len(b) {
		return decimal.Zero
	}
	meanA := CalculateMean(a)
	meanB := CalculateMean(b)

	var covar, varA, varB decimal.Decimal
	for i := 0; i < n; i++ {
		da := a[i].Sub(meanA)
		db := b[i].Sub(meanB)
		covar = covar.Add(da.Mul(db))
		varA = varA.Add(da.Mul(da))
		varB = varB.Add(db.Mul(db))
	}
	if varA.IsZero() || varB.IsZero() {
		return decimal.Zero
	}
	denom := math.Sqrt(varA.InexactFloat64() * varB.InexactFloat64())
	if denom == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(covar.InexactFloat64() / denom)
}

// LogReturns converts a price series into a series of natural-log returns.
func LogReturns(prices []decimal.Decimal) []decimal.Decimal {
	if len(prices) < 2 {
		return nil
	}
	out := make([]decimal.Decimal, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].InexactFloat64()
		cur := prices[i].InexactFloat64()
		if prev <= 0 || cur <= 0 {
			out[i-1] = decimal.Zero
			continue
		}
		out[i-1] = decimal.NewFromFloat(math.Log(cur / prev))
	}
	return out
}

// CalculateMean calculates the mean of decimal values.
func CalculateMean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}

	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// CalculateStdDev calculates the (sample) standard deviation of decimal
// values.
func CalculateStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}

	mean := CalculateMean(values)

	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}

	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// CalculateSharpeRatio calculates the annualised Sharpe ratio of a return
// series against a risk-free rate, given the number of periods per year.
func CalculateSharpeRatio(returns []decimal.Decimal, riskFreeRate decimal.Decimal, periodsPerYear int) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}

	meanReturn := CalculateMean(returns)
	stdDev := CalculateStdDev(returns)

	if stdDev.IsZero() {
		return decimal.Zero
	}

	annualizationFactor := decimal.NewFromFloat(math.Sqrt(float64(periodsPerYear)))
	excessReturn := meanReturn.Sub(riskFreeRate.Div(decimal.NewFromInt(int64(periodsPerYear))))

	return excessReturn.Div(stdDev).Mul(annualizationFactor)
}

// RetryConfig configures exponential-backoff retry of a fallible operation.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry configuration used for egress RPCs
// that don't override it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry retries fn with exponential backoff until it succeeds or
// config.MaxAttempts is exhausted.
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}
