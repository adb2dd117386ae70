// Package retry 提供带指数退避和抖动的有限次重试
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config 重试配置
type Config struct {
	Attempts     int           // 总尝试次数,包含第一次
	InitialDelay time.Duration // 第一次重试前的等待
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0.25 表示 ±25%
}

func DefaultConfig() Config {
	return Config{
		Attempts:     4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

// AttemptError 重试耗尽后返回,包装最后一次的错误
type AttemptError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Do 执行 fn 直到成功或用完尝试次数,每次失败都会调用 onRetry(若还会重试)
func Do(ctx context.Context, cfg Config, op string, fn func() error, onRetry func(attempt int, err error)) error {
	attempts := max(cfg.Attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", op, err)
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if delay := Delay(cfg, attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s cancelled during retry wait: %w", op, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return &AttemptError{Op: op, Attempts: attempts, Err: lastErr}
}

// Delay 计算第 attempt 次失败后的等待时间
func Delay(cfg Config, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
	}
	if cfg.Jitter > 0 {
		j := delay * cfg.Jitter
		delay = delay - j + rand.Float64()*2*j
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
