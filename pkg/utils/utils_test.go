package utils_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/utils"
	"github.com/shopspring/decimal"
)

func TestVerifyHMACAcceptsOwnSignature(t *testing.T) {
	secret := []byte("shared-secret")
	sig := utils.SignHMAC(secret, 1700000000000, "nonce-1", []byte(`{"a":1}`))
	if !utils.VerifyHMAC(secret, 1700000000000, "nonce-1", []byte(`{"a":1}`), sig) {
		t.Fatalf("expected self-signed signature to verify")
	}
}

func TestVerifyHMACRejectsTamperedPayload(t *testing.T) {
	secret := []byte("shared-secret")
	sig := utils.SignHMAC(secret, 1700000000000, "nonce-1", []byte(`{"a":1}`))
	if utils.VerifyHMAC(secret, 1700000000000, "nonce-1", []byte(`{"a":2}`), sig) {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestPearsonCorrelationPerfectlyCorrelated(t *testing.T) {
	a := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)}
	b := []decimal.Decimal{decimal.NewFromInt(2), decimal.NewFromInt(4), decimal.NewFromInt(6)}
	corr := utils.PearsonCorrelation(a, b)
	if corr.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(0.001)) {
		t.Fatalf("expected correlation ~1, got %s", corr)
	}
}

func TestPearsonCorrelationMismatchedLengthIsZero(t *testing.T) {
	a := []decimal.Decimal{decimal.NewFromInt(1)}
	b := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2)}
	if !utils.PearsonCorrelation(a, b).IsZero() {
		t.Fatalf("expected zero correlation for mismatched series")
	}
}

func TestCalculateSharpeRatioZeroStdDevIsZero(t *testing.T) {
	returns := []decimal.Decimal{decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.01)}
	if !utils.CalculateSharpeRatio(returns, decimal.Zero, 365).IsZero() {
		t.Fatalf("expected zero Sharpe when stddev is zero")
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	result, err := utils.Retry(cfg, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if result != 42 {
		t.Fatalf("expected result 42, got %d", result)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := utils.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	_, err := utils.Retry(cfg, func() (int, error) {
		attempts++
		return 0, errors.New("permanent")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}
