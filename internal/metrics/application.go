package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ApplicationMetrics tracks social engagement that feeds the notification layer
type ApplicationMetrics struct {
	FriendRequestsTotal prometheus.CounterVec
	UnfriendsTotal      prometheus.Counter
	LikesTotal          prometheus.Counter
	CommentsTotal       prometheus.CounterVec
	SharesTotal         prometheus.Counter
	PostsCreated        prometheus.Counter
	MentionsTotal       prometheus.Counter
}

var (
	appInstance *ApplicationMetrics
	appOnce     sync.Once
)

// Application returns the process-wide application metrics, registering them on first use
func Application() *ApplicationMetrics {
	appOnce.Do(func() {
		appInstance = &ApplicationMetrics{
			FriendRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "friend_requests_total",
					Help: "Friend request actions",
				},
				[]string{"action"},
			),
			UnfriendsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "unfriends_total",
					Help: "Total number of removed friendships",
				},
			),
			LikesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "likes_total",
					Help: "Total number of likes",
				},
			),
			CommentsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "comments_total",
					Help: "Total number of comments",
				},
				[]string{"kind"},
			),
			SharesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "shares_total",
					Help: "Total number of shares",
				},
			),
			PostsCreated: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "posts_created_total",
					Help: "Total number of posts created",
				},
			),
			MentionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "mentions_total",
					Help: "Mentions resolved to existing users",
				},
			),
		}
	})
	return appInstance
}
