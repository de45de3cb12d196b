package prize_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/attest/internal/domain/prize"
	"github.com/smartystreets/goconvey/convey"
)

// sequence replays fixed draws.
type sequence struct {
	vals []int
	i    int
}

func (s *sequence) IntN(n int) int {
	v := s.vals[s.i%len(s.vals)] % n
	s.i++
	return v
}

func TestCatalog(t *testing.T) {
	convey.Convey("Given the built-in catalog", t, func() {
		c := prize.Default()

		convey.Convey("Then probabilities are normalised to integer weights", func() {
			convey.So(c.Len(), convey.ShouldEqual, 6)
			convey.So(c.TotalWeight(), convey.ShouldEqual, 10000)
			jackpot, ok := c.Get("jackpot")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(jackpot.Weight, convey.ShouldEqual, 50)
			convey.So(jackpot.Kind, convey.ShouldEqual, prize.KindSpecial)
		})

		convey.Convey("Then Prizes returns a copy", func() {
			ps := c.Prizes()
			ps[0].ID = "mutated"
			convey.So(c.Prizes()[0].ID, convey.ShouldEqual, "coffee")
		})
	})

	convey.Convey("Given TOML with integer weights", t, func() {
		c, err := prize.Parse(`
[[prize]]
id = "a"
kind = "discount"
value = 5
weight = 3

[[prize]]
id = "b"
name = "Bee"
kind = "free_item"
weight = 1
`)
		convey.So(err, convey.ShouldBeNil)
		convey.So(c.TotalWeight(), convey.ShouldEqual, 4)
		a, _ := c.Get("a")
		convey.So(a.Name, convey.ShouldEqual, "a")
		convey.So(a.Value, convey.ShouldEqual, 5)
	})

	convey.Convey("Given invalid catalogs", t, func() {
		cases := map[string]struct {
			doc  string
			want error
		}{
			"empty":     {``, prize.ErrEmptyCatalog},
			"bad toml":  {`[[prize]`, prize.ErrParseCatalog},
			"no id":     {"[[prize]]\nkind = \"special\"\nweight = 1", prize.ErrInvalidPrize},
			"bad kind":  {"[[prize]]\nid = \"x\"\nkind = \"cash\"\nweight = 1", prize.ErrInvalidPrize},
			"zero":      {"[[prize]]\nid = \"x\"\nkind = \"special\"\nweight = 0", prize.ErrInvalidPrize},
			"no weight": {"[[prize]]\nid = \"x\"\nkind = \"special\"", prize.ErrInvalidPrize},
			"duplicate": {"[[prize]]\nid = \"x\"\nkind = \"special\"\nweight = 1\n[[prize]]\nid = \"x\"\nkind = \"special\"\nweight = 1", prize.ErrDuplicatePrize},
			"mixed":     {"[[prize]]\nid = \"x\"\nkind = \"special\"\nweight = 1\n[[prize]]\nid = \"y\"\nkind = \"special\"\nprobability = 1.5", prize.ErrMixedWeights},
		}
		for name, tc := range cases {
			convey.Convey("When the catalog is "+name, func() {
				_, err := prize.Parse(tc.doc)
				convey.So(errors.Is(err, tc.want), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a catalog on disk", t, func() {
		path := filepath.Join(t.TempDir(), "wheel.toml")
		convey.So(os.WriteFile(path, []byte("[[prize]]\nid = \"only\"\nkind = \"special\"\nprobability = 12.34\n"), 0o600), convey.ShouldBeNil)

		c, err := prize.LoadFile(path)
		convey.So(err, convey.ShouldBeNil)
		only, _ := c.Get("only")
		convey.So(only.Weight, convey.ShouldEqual, 1234)

		_, err = prize.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
		convey.So(errors.Is(err, prize.ErrParseCatalog), convey.ShouldBeTrue)
	})
}

func TestDraw(t *testing.T) {
	convey.Convey("Given a catalog with weights 1,2,7", t, func() {
		c, err := prize.NewCatalog([]prize.Prize{
			{ID: "a", Kind: prize.KindFreeItem, Weight: 1},
			{ID: "b", Kind: prize.KindDiscount, Weight: 2},
			{ID: "c", Kind: prize.KindSpecial, Weight: 7},
		})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then draws map onto cumulative bounds", func() {
			src := &sequence{vals: []int{0, 1, 2, 3, 9}}
			got := []string{}
			for range 5 {
				got = append(got, prize.Draw(c, src).ID)
			}
			convey.So(got, convey.ShouldResemble, []string{"a", "b", "b", "c", "c"})
		})

		convey.Convey("Then the empirical distribution converges to weight/total", func() {
			const n = 200_000
			src := rand.New(rand.NewPCG(1, 2))
			counts := map[string]int{}
			for range n {
				counts[prize.Draw(c, src).ID]++
			}
			for id, w := range map[string]int{"a": 1, "b": 2, "c": 7} {
				p := float64(w) / 10
				sigma := math.Sqrt(n * p * (1 - p))
				convey.So(math.Abs(float64(counts[id])-n*p), convey.ShouldBeLessThan, 5*sigma)
			}
		})
	})

	convey.Convey("Given a catalog with one prize of weight 1", t, func() {
		c, err := prize.NewCatalog([]prize.Prize{{ID: "only", Kind: prize.KindSpecial, Weight: 1}})
		convey.So(err, convey.ShouldBeNil)

		for range 100 {
			convey.So(prize.Draw(c, prize.SystemSource{}).ID, convey.ShouldEqual, "only")
		}
	})

	convey.Convey("Given weights that do not sum to 100", t, func() {
		c, _ := prize.NewCatalog([]prize.Prize{
			{ID: "x", Kind: prize.KindSpecial, Weight: 3},
			{ID: "y", Kind: prize.KindSpecial, Weight: 3},
		})
		convey.So(c.TotalWeight(), convey.ShouldEqual, 6)
		convey.So(prize.Draw(c, &sequence{vals: []int{5}}).ID, convey.ShouldEqual, "y")
	})
}
