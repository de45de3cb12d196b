package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	service "github.com/okian/attest/internal/app"
	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRedeem(t *testing.T) {
	Convey("Given a coupon won on the wheel", t, func() {
		ctx := context.Background()
		clk := newClock()
		svc := newTestService(repository.NewMemoryStore(), clk)
		spin, err := svc.Spin(ctx, "guest-1")
		So(err, ShouldBeNil)
		code := spin.Coupon.Code

		Convey("Then it reads back as ready", func() {
			got, err := svc.Coupon(ctx, code)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.CouponReady)
			So(got.PrizeID, ShouldEqual, spin.Prize.ID)
		})

		Convey("When staff redeem it using a lower-case code", func() {
			clk.Advance(time.Hour)
			got, err := svc.Redeem(ctx, "  "+strings.ToLower(code))

			Convey("Then it is redeemed once", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.CouponRedeemed)
				So(got.RedeemedAt.Equal(clk.Now()), ShouldBeTrue)

				again, err := svc.Redeem(ctx, code)
				So(errors.Is(err, repository.ErrAlreadyRedeemed), ShouldBeTrue)
				So(service.Code(err), ShouldEqual, service.CodeAlreadyRedeemed)
				So(again.Code, ShouldEqual, code)
			})
		})

		Convey("When it is redeemed on the last valid instant", func() {
			clk.Advance(service.DefaultCouponValidity)
			_, err := svc.Redeem(ctx, code)
			So(err, ShouldBeNil)
		})

		Convey("When it is redeemed after expiry", func() {
			clk.Advance(service.DefaultCouponValidity + time.Millisecond)
			got, err := svc.Redeem(ctx, code)

			Convey("Then it is rejected as expired", func() {
				So(errors.Is(err, repository.ErrCouponExpired), ShouldBeTrue)
				So(service.Code(err), ShouldEqual, service.CodeExpired)
				So(got.Status, ShouldEqual, model.CouponExpired)
			})
		})

		Convey("When two counters redeem it at once", func() {
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				oks int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.Redeem(ctx, code); err == nil {
						mu.Lock()
						oks++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(oks, ShouldEqual, 1)
		})
	})

	Convey("Given an unknown code", t, func() {
		ctx := context.Background()
		svc := newTestService(repository.NewMemoryStore(), newClock())

		_, err := svc.Redeem(ctx, "ZZZZ-ZZZZ")
		So(errors.Is(err, repository.ErrCouponNotFound), ShouldBeTrue)
		So(service.Code(err), ShouldEqual, service.CodeNotFound)

		_, err = svc.Coupon(ctx, "ZZZZ-ZZZZ")
		So(service.Code(err), ShouldEqual, service.CodeNotFound)

		_, err = svc.Redeem(ctx, "")
		So(service.Code(err), ShouldEqual, service.CodeInvalidRequest)
	})
}
