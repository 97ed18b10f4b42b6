package messaging

import (
	"context"
	"errors"

	"dizzycode.xyz/strategy-engine/internal/application"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy"
)

// FanoutPublisher 依序發布到多個目的地
//
// 第一個發布器是主要通道，它失敗才算發布失敗；
// 其餘通道的錯誤交給 onSecondaryError 處理。
type FanoutPublisher struct {
	primary          application.OrderPublisher
	secondary        []application.OrderPublisher
	onSecondaryError func(err error)
}

// NewFanoutPublisher creates a FanoutPublisher
func NewFanoutPublisher(primary application.OrderPublisher, onSecondaryError func(error), secondary ...application.OrderPublisher) *FanoutPublisher {
	return &FanoutPublisher{
		primary:          primary,
		secondary:        secondary,
		onSecondaryError: onSecondaryError,
	}
}

// Publish implements application.OrderPublisher interface
func (f *FanoutPublisher) Publish(ctx context.Context, instID string, req strategy.OrderRequest) error {
	if err := f.primary.Publish(ctx, instID, req); err != nil {
		return err
	}

	var errs []error
	for _, p := range f.secondary {
		if err := p.Publish(ctx, instID, req); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && f.onSecondaryError != nil {
		f.onSecondaryError(err)
	}
	return nil
}
