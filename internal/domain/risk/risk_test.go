package risk_test

import (
	"testing"
	"time"

	"github.com/okian/attest/internal/domain/risk"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func ev(k risk.Kind, at time.Duration) risk.Event {
	return risk.Event{Kind: k, UserID: "u1", At: t0.Add(at)}
}

func TestScore(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := risk.NewWeightedPolicy()

		Convey("Then a clean history scores zero", func() {
			h := []risk.Event{ev(risk.AttestOK, 0), ev(risk.SpinAllowed, time.Minute)}
			So(risk.Score(p, h, t0.Add(time.Hour)), ShouldEqual, 0)
			So(risk.LevelOf(0), ShouldEqual, risk.LevelLow)
		})

		Convey("Then forged and replayed codes add up", func() {
			h := []risk.Event{
				ev(risk.AttestInvalidSignature, 0),
				ev(risk.AttestAlreadyUsed, time.Second),
				ev(risk.AttestAlreadyUsed, 2*time.Second),
			}
			So(risk.Score(p, h, t0.Add(time.Minute)), ShouldEqual, 9)
			So(risk.LevelOf(9), ShouldEqual, risk.LevelMedium)
		})

		Convey("Then events outside the window are ignored", func() {
			p := risk.NewWeightedPolicy(risk.WithWindow(time.Hour))
			h := []risk.Event{ev(risk.AttestInvalidSignature, 0), ev(risk.SpinDenied, 2*time.Hour)}
			So(risk.Score(p, h, t0.Add(2*time.Hour+time.Minute)), ShouldEqual, 1)
		})

		Convey("Then rapid redemptions pay a surcharge", func() {
			var h []risk.Event
			for i := range 5 {
				h = append(h, ev(risk.RedeemOK, time.Duration(i)*time.Minute))
			}
			// 5 x 0.5 plus 2 for the 4th and 5th redemption.
			So(risk.Score(p, h, t0.Add(time.Hour)), ShouldEqual, 6.5)
		})

		Convey("Then spaced redemptions do not", func() {
			var h []risk.Event
			for i := range 5 {
				h = append(h, ev(risk.RedeemOK, time.Duration(i)*2*time.Hour))
			}
			So(risk.Score(p, h, t0.Add(10*time.Hour)), ShouldEqual, 2.5)
		})

		Convey("Then unordered history gives the same score", func() {
			h := []risk.Event{
				ev(risk.RedeemOK, 3*time.Minute), ev(risk.RedeemOK, 0),
				ev(risk.RedeemOK, 2*time.Minute), ev(risk.RedeemOK, time.Minute),
			}
			So(risk.Score(p, h, t0.Add(time.Hour)), ShouldEqual, 4)
		})
	})

	Convey("Given configured weights", t, func() {
		p := risk.NewWeightedPolicy(risk.WithWeights(map[string]float64{
			"attest_expired": 3,
			"spin_denied":    -1,
			"not_a_kind":     100,
		}))
		h := []risk.Event{ev(risk.AttestExpired, 0), ev(risk.SpinDenied, time.Second)}
		So(risk.Score(p, h, t0.Add(time.Minute)), ShouldEqual, 4)
	})

	Convey("Given badge thresholds", t, func() {
		So(risk.LevelOf(risk.MediumThreshold-0.1), ShouldEqual, risk.LevelLow)
		So(risk.LevelOf(risk.MediumThreshold), ShouldEqual, risk.LevelMedium)
		So(risk.LevelOf(risk.HighThreshold), ShouldEqual, risk.LevelHigh)
	})
}
