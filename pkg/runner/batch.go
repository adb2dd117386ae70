// Package runner 把同一个任务并发地分发到多个端点
package runner

import (
	"context"
	"fmt"

	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/utils"
)

// Target 一个命名的上传端点
type Target struct {
	Name     string
	Endpoint models.Endpoint
}

type TaskFunc func(ctx context.Context, t Target) error

type Result struct {
	Target Target
	Err    error
}

// RunParallel 最多 concurrency 个任务同时运行,每个 target 恰好产生一个 Result。
// ctx 取消后尚未开始的任务直接返回 ctx.Err()。
func RunParallel(ctx context.Context, targets []Target, concurrency uint, task TaskFunc) <-chan Result {
	// 缓冲区等于 target 数量,worker 不会阻塞在发送上
	results := make(chan Result, len(targets))
	go func() {
		defer close(results)
		pool := utils.NewPool(concurrency)
		for _, t := range targets {
			pool.Go(func() {
				results <- Result{Target: t, Err: runOne(ctx, t, task)}
			})
		}
		pool.Wait()
	}()
	return results
}

func runOne(ctx context.Context, t Target, task TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task for %s panicked: %v", t.Name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return task(ctx, t)
}
