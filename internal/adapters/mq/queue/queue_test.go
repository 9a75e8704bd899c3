package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/adapters/mq/queue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue of capacity two", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue[string](queue.WithCapacity(2), queue.WithName("test"))

		Convey("When three items are enqueued", func() {
			a := q.Enqueue(ctx, "a")
			b := q.Enqueue(ctx, "b")
			c := q.Enqueue(ctx, "c")

			Convey("Then the third is refused without blocking", func() {
				So(a, ShouldBeTrue)
				So(b, ShouldBeTrue)
				So(c, ShouldBeFalse)
				So(q.Len(), ShouldEqual, 2)
				So(q.Cap(), ShouldEqual, 2)
			})

			Convey("Then items come out in order and the channel closes after Close", func() {
				out := q.Dequeue(ctx)
				So(<-out, ShouldEqual, "a")
				So(<-out, ShouldEqual, "b")
				So(q.Close(), ShouldBeNil)
				_, ok := <-out
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue is refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, "late"), ShouldBeFalse)
			})
		})

		Convey("When the enqueue context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then the item is refused", func() {
				So(q.Enqueue(cctx, "x"), ShouldBeFalse)
			})
		})

		Convey("When the dequeue context ends", func() {
			dctx, cancel := context.WithCancel(ctx)
			out := q.Dequeue(dctx)
			cancel()

			Convey("Then the channel closes", func() {
				select {
				case _, ok := <-out:
					So(ok, ShouldBeFalse)
				case <-time.After(time.Second):
					So("dequeue channel still open", ShouldBeEmpty)
				}
			})
		})
	})
}
