package constants

// Fan-out constants
const (
	// DefaultFanoutConcurrency bounds parallel feed writes per cascade
	DefaultFanoutConcurrency = 16

	// DefaultFanoutBatchSize is how many follower ids are streamed per batch
	DefaultFanoutBatchSize = 500

	// MaxFailedFeedsReported caps the follower ids carried by a cascade failure
	MaxFailedFeedsReported = 100

	// MaxFeedPosts caps the materialized post sequence of one feed
	MaxFeedPosts = 500
)

// Graph labels and relationship types
const (
	LabelUser  = "User"
	LabelGroup = "ContentGroup"

	RelFollows      = "FOLLOWS"
	RelFriends      = "FRIENDS_WITH"
	RelFavorites    = "FAVORITES"
	RelFollowsGroup = "FOLLOWS_GROUP"
	RelOwns         = "OWNS"
	RelModerates    = "MODERATES"
	RelContributes  = "CONTRIBUTES_TO"
)

// Event subjects
const (
	SubjectCascadeFailed = "fanout.cascade.failed"
	SubjectPostCreated   = "post.created"
)

// Resource names used in error messages
const (
	ResourceUser  = "user"
	ResourceGroup = "group"
	ResourceFeed  = "feed"
)
