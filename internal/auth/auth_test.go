package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

func TestTokenIssuer(t *testing.T) {
	Convey("Given an issuer with a fixed clock", t, func() {
		now := time.Date(2026, 6, 21, 20, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		iss := NewTokenIssuer("secret", WithTTL(time.Hour), WithAdminKey("backstage"), WithClock(clock))

		Convey("When a juror token is issued and parsed", func() {
			tok, exp, err := iss.Issue(Identity{Subject: "j1", Role: RoleJuror})
			So(err, ShouldBeNil)
			So(exp, ShouldEqual, now.Add(time.Hour))

			id, err := iss.Parse(tok)

			Convey("Then the identity round-trips", func() {
				So(err, ShouldBeNil)
				So(id, ShouldResemble, Identity{Subject: "j1", Role: RoleJuror})
				So(id.IsJuror("j1"), ShouldBeTrue)
				So(id.IsJuror("j2"), ShouldBeFalse)
				So(id.IsAdmin(), ShouldBeFalse)
			})
		})

		Convey("When the token has expired", func() {
			tok, _, _ := iss.Issue(Identity{Subject: "j1", Role: RoleJuror})
			now = now.Add(2 * time.Hour)
			_, err := iss.Parse(tok)

			Convey("Then it is rejected as unauthorized", func() {
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("When a token is signed with another secret", func() {
			other := NewTokenIssuer("other", WithClock(clock))
			tok, _, _ := other.Issue(Identity{Subject: "x", Role: RoleAdmin})
			_, err := iss.Parse(tok)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("When the admin key is exchanged", func() {
			tok, _, err := iss.AdminToken("backstage")
			So(err, ShouldBeNil)
			id, err := iss.Parse(tok)

			Convey("Then the token carries the admin role", func() {
				So(err, ShouldBeNil)
				So(id.IsAdmin(), ShouldBeTrue)
			})
		})

		Convey("When a wrong admin key is given", func() {
			_, _, err := iss.AdminToken("front-row")
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When an unknown role is issued", func() {
			_, _, err := iss.Issue(Identity{Subject: "x", Role: "producer"})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})

	Convey("Given an issuer without admin key", t, func() {
		iss := NewTokenIssuer("secret")
		_, _, err := iss.AdminToken("")
		So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
	})
}

func TestIdentityContext(t *testing.T) {
	Convey("Given contexts with and without identity", t, func() {
		ctx := context.Background()
		admin := WithIdentity(ctx, Identity{Subject: "cr", Role: RoleAdmin})

		So(FromContext(ctx), ShouldResemble, Anonymous)
		So(FromContext(admin).IsAdmin(), ShouldBeTrue)
		So(RequireAdmin(admin, "op"), ShouldBeNil)
		So(errors.Is(RequireAdmin(ctx, "op"), model.ErrUnauthorized), ShouldBeTrue)
	})
}
