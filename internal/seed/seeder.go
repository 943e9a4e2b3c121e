package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPassword is the password of every seeded account
const DefaultPassword = "password123"

// seedEmailDomain marks rows created by the seeder so Clean can find them
const seedEmailDomain = "@example.com"

// Seeder handles database seeding operations
type Seeder struct {
	db           *gorm.DB
	passwordHash string
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	// Seed returns an error only for invalid sources
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// Options sizes a development seed
type Options struct {
	Users         int
	FriendsEach   int
	Posts         int
	Comments      int
	Likes         int
	Messages      int
	Notifications int
}

// DefaultOptions is a data set large enough to exercise presence fan-out
func DefaultOptions() Options {
	return Options{
		Users:         200,
		FriendsEach:   8,
		Posts:         500,
		Comments:      1000,
		Likes:         2000,
		Messages:      2000,
		Notifications: 1500,
	}
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev(opts Options) error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating users...")
	users, err := s.seedUsers(opts.Users)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	log("Creating friendships...")
	if err := s.seedFriendships(users, opts.FriendsEach); err != nil {
		return fmt.Errorf("failed to seed friendships: %w", err)
	}

	log("Creating posts...")
	posts, err := s.seedPosts(users, opts.Posts)
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}

	log("Creating comments...")
	if err := s.seedComments(users, posts, opts.Comments); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	log("Creating likes...")
	if err := s.seedLikes(users, posts, opts.Likes); err != nil {
		return fmt.Errorf("failed to seed likes: %w", err)
	}

	log("Creating direct messages...")
	if err := s.seedMessages(users, opts.Messages); err != nil {
		return fmt.Errorf("failed to seed direct messages: %w", err)
	}

	log("Creating notifications...")
	if err := s.seedNotifications(users, posts, opts.Notifications); err != nil {
		return fmt.Errorf("failed to seed notifications: %w", err)
	}

	return nil
}

// SeedTest seeds a small fixed data set: five users, a chain of
// friendships, one post each and a short conversation
func (s *Seeder) SeedTest() error {
	log := func(msg string) {
		logger.Log.Info(msg)
	}

	log("Creating test users...")
	specs := []struct {
		username    string
		displayName string
	}{
		{"alice", "Alice Smith"},
		{"bob", "Bob Johnson"},
		{"charlie", "Charlie Brown"},
		{"diana", "Diana Prince"},
		{"eve", "Eve Wilson"},
	}

	hash, err := s.hash()
	if err != nil {
		return err
	}

	users := make([]models.User, 0, len(specs))
	for _, spec := range specs {
		email := spec.username + seedEmailDomain

		var user models.User
		if err := s.db.Where("username = ? OR email = ?", spec.username, email).First(&user).Error; err == nil {
			users = append(users, user)
			continue
		}

		user = models.User{
			Email:              email,
			Username:           spec.username,
			DisplayName:        spec.displayName,
			PasswordHash:       hash,
			AvatarURL:          avatarURL(spec.username),
			EmailNotifications: true,
			ShowPresence:       true,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", spec.username, err)
		}
		users = append(users, user)
	}

	log("Creating test friendships...")
	for i := 0; i+1 < len(users); i++ {
		if err := s.befriend(users[i].ID, users[i+1].ID); err != nil {
			return fmt.Errorf("failed to create test friendship: %w", err)
		}
	}

	log("Creating test posts...")
	posts, err := s.seedPosts(users, len(users))
	if err != nil {
		return fmt.Errorf("failed to seed posts: %w", err)
	}
	if err := s.seedComments(users, posts, 10); err != nil {
		return fmt.Errorf("failed to seed comments: %w", err)
	}

	log("Creating test conversation...")
	lines := []string{"hey!", "hi alice, how's it going?", "good, want to grab coffee later?"}
	for i, line := range lines {
		from, to := users[0], users[1]
		if i%2 == 1 {
			from, to = to, from
		}
		msg := models.DirectMessage{SenderID: from.ID, RecipientID: to.ID, Content: line}
		if err := s.db.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to create test message: %w", err)
		}
	}

	return nil
}

// Clean removes all seed data (use with caution!)
func (s *Seeder) Clean() error {
	seedUsers := s.db.Model(&models.User{}).Select("id").Where("email LIKE ?", "%"+seedEmailDomain)

	// Delete in reverse order of dependencies
	steps := []struct {
		name  string
		model interface{}
		where string
	}{
		{"notifications", &models.Notification{}, "user_id IN (?) OR actor_id IN (?)"},
		{"direct_messages", &models.DirectMessage{}, "sender_id IN (?) OR recipient_id IN (?)"},
		{"post_likes", &models.PostLike{}, "user_id IN (?) OR user_id IN (?)"},
		{"post_shares", &models.PostShare{}, "user_id IN (?) OR user_id IN (?)"},
		{"comments", &models.Comment{}, "user_id IN (?) OR user_id IN (?)"},
		{"friend_requests", &models.FriendRequest{}, "requester_id IN (?) OR target_id IN (?)"},
		{"friendships", &models.Friendship{}, "user_id IN (?) OR friend_id IN (?)"},
	}
	for _, step := range steps {
		if err := s.db.Unscoped().Where(step.where, seedUsers, seedUsers).Delete(step.model).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", step.name, err)
		}
	}

	// Comments by real users on seeded posts go with the posts
	seedPosts := s.db.Model(&models.Post{}).Select("id").Where("user_id IN (?)", seedUsers)
	for _, model := range []interface{}{&models.Comment{}, &models.PostLike{}, &models.PostShare{}} {
		if err := s.db.Unscoped().Where("post_id IN (?)", seedPosts).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clean post children: %w", err)
		}
	}
	if err := s.db.Unscoped().Where("user_id IN (?)", seedUsers).Delete(&models.Post{}).Error; err != nil {
		return fmt.Errorf("failed to clean posts: %w", err)
	}
	if err := s.db.Unscoped().Where("email LIKE ?", "%"+seedEmailDomain).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("failed to clean users: %w", err)
	}

	return nil
}

// TableCount is the row count of one table
type TableCount struct {
	Table string
	Rows  int64
}

// Counts reports how many rows each seeded table holds
func (s *Seeder) Counts() ([]TableCount, error) {
	tables := []struct {
		name  string
		model interface{}
	}{
		{"users", &models.User{}},
		{"friendships", &models.Friendship{}},
		{"friend_requests", &models.FriendRequest{}},
		{"posts", &models.Post{}},
		{"comments", &models.Comment{}},
		{"post_likes", &models.PostLike{}},
		{"post_shares", &models.PostShare{}},
		{"direct_messages", &models.DirectMessage{}},
		{"notifications", &models.Notification{}},
	}

	counts := make([]TableCount, 0, len(tables))
	for _, t := range tables {
		var n int64
		if err := s.db.Model(t.model).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t.name, err)
		}
		counts = append(counts, TableCount{Table: t.name, Rows: n})
	}
	return counts, nil
}

func (s *Seeder) hash() (string, error) {
	if s.passwordHash != "" {
		return s.passwordHash, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	s.passwordHash = string(hashed)
	return s.passwordHash, nil
}

// seedUsers creates users with realistic data
func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	var seedUserCount int64
	s.db.Model(&models.User{}).Where("email LIKE ?", "%"+seedEmailDomain).Count(&seedUserCount)
	if seedUserCount >= int64(count) {
		var users []models.User
		if err := s.db.Where("email LIKE ?", "%"+seedEmailDomain).Find(&users).Error; err != nil {
			return nil, err
		}
		logger.Log.Info("Found existing seed users, skipping creation", zap.Int64("seed_users", seedUserCount))
		return users, nil
	}

	hash, err := s.hash()
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		username := seedUsername()

		// Ensure unique username/email
		var existing models.User
		for s.db.Where("username = ?", username).First(&existing).Error != gorm.ErrRecordNotFound {
			username = seedUsername()
		}

		lastSeen := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now()).UTC()
		user := models.User{
			Email:              username + seedEmailDomain,
			Username:           username,
			DisplayName:        gofakeit.Name(),
			Bio:                gofakeit.HipsterSentence(),
			AvatarURL:          avatarURL(username),
			PasswordHash:       hash,
			LastSeenAt:         &lastSeen,
			EmailNotifications: rand.Float32() < 0.7,
			ShowPresence:       rand.Float32() < 0.9,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
	}

	logger.Log.Info("Created new seed users", zap.Int("new_users", count))
	return users, nil
}

// seedFriendships gives every user up to perUser random friends
func (s *Seeder) seedFriendships(users []models.User, perUser int) error {
	if len(users) < 2 {
		return nil
	}

	edges := 0
	for i := range users {
		for j := 0; j < perUser; j++ {
			other := users[rand.Intn(len(users))]
			if other.ID == users[i].ID {
				continue
			}
			if err := s.befriend(users[i].ID, other.ID); err != nil {
				return err
			}
			edges++
		}
	}

	logger.Log.Info("Created friendships", zap.Int("edges", edges))
	return nil
}

// befriend writes an accepted request plus both friendship rows. Existing
// edges are left alone.
func (s *Seeder) befriend(a, b string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		req := models.FriendRequest{
			RequesterID: a,
			TargetID:    b,
			Status:      models.FriendRequestAccepted,
			RespondedAt: &now,
		}
		if err := tx.Omit(clause.Associations).Create(&req).Error; err != nil {
			return err
		}
		edges := []models.Friendship{
			{UserID: a, FriendID: b},
			{UserID: b, FriendID: a},
		}
		return tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&edges).Error
	})
}

// seedPosts spreads count posts across users, at least one each while
// posts remain
func (s *Seeder) seedPosts(users []models.User, count int) ([]models.Post, error) {
	if len(users) == 0 {
		return nil, nil
	}

	posts := make([]models.Post, 0, count)
	for i := 0; i < count; i++ {
		author := users[i%len(users)]
		if i >= len(users) {
			author = users[rand.Intn(len(users))]
		}

		createdAt := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now()).UTC()
		post := models.Post{
			UserID:    author.ID,
			Content:   postContent(users),
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if err := s.db.Omit(clause.Associations).Create(&post).Error; err != nil {
			return nil, fmt.Errorf("failed to create post: %w", err)
		}
		posts = append(posts, post)
	}

	logger.Log.Info("Created posts", zap.Int("count", len(posts)))
	return posts, nil
}

func (s *Seeder) seedComments(users []models.User, posts []models.Post, count int) error {
	if len(users) == 0 || len(posts) == 0 {
		return nil
	}

	commentTemplates := []string{
		"Love this!",
		"So true",
		"Miss you all",
		"Great photo",
		"Congrats!!",
		"When is the next get-together?",
		"Haha classic",
		"Count me in",
	}

	var roots []models.Comment
	for i := 0; i < count; i++ {
		user := users[rand.Intn(len(users))]
		post := posts[rand.Intn(len(posts))]

		var content string
		if rand.Float32() < 0.5 {
			content = commentTemplates[rand.Intn(len(commentTemplates))]
		} else {
			content = gofakeit.HipsterSentence()
		}

		comment := models.Comment{
			PostID:  post.ID,
			UserID:  user.ID,
			Content: content,
		}
		// One in four comments replies to an earlier thread root
		if len(roots) > 0 && rand.Float32() < 0.25 {
			parent := roots[rand.Intn(len(roots))]
			comment.PostID = parent.PostID
			comment.ParentID = &parent.ID
		}

		createdAt := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now()).UTC()
		comment.CreatedAt = createdAt
		comment.UpdatedAt = createdAt

		if err := s.db.Omit(clause.Associations).Create(&comment).Error; err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		if comment.ParentID == nil {
			roots = append(roots, comment)
		}
	}

	logger.Log.Info("Created comments", zap.Int("count", count))
	return nil
}

func (s *Seeder) seedLikes(users []models.User, posts []models.Post, count int) error {
	if len(users) == 0 || len(posts) == 0 {
		return nil
	}

	created := 0
	for i := 0; i < count; i++ {
		post := posts[rand.Intn(len(posts))]
		like := models.PostLike{PostID: post.ID, UserID: users[rand.Intn(len(users))].ID}

		result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if result.Error != nil {
			return fmt.Errorf("failed to create like: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		s.db.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("like_count", gorm.Expr("like_count + 1"))
		created++
	}

	logger.Log.Info("Created likes", zap.Int("count", created))
	return nil
}

// seedMessages writes conversations between friends, oldest first
func (s *Seeder) seedMessages(users []models.User, count int) error {
	var edges []models.Friendship
	if err := s.db.Where("user_id IN ?", userIDs(users)).Find(&edges).Error; err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}

	for i := 0; i < count; i++ {
		edge := edges[rand.Intn(len(edges))]
		createdAt := gofakeit.DateRange(time.Now().AddDate(0, 0, -14), time.Now()).UTC()

		msg := models.DirectMessage{
			SenderID:    edge.UserID,
			RecipientID: edge.FriendID,
			Content:     gofakeit.HipsterSentence(),
			CreatedAt:   createdAt,
		}
		// Older messages have been read
		if createdAt.Before(time.Now().AddDate(0, 0, -2)) {
			readAt := createdAt.Add(time.Duration(rand.Intn(3600)) * time.Second)
			msg.ReadAt = &readAt
		}
		if err := s.db.Omit(clause.Associations).Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to create direct message: %w", err)
		}
	}

	logger.Log.Info("Created direct messages", zap.Int("count", count))
	return nil
}

func (s *Seeder) seedNotifications(users []models.User, posts []models.Post, count int) error {
	if len(users) < 2 {
		return nil
	}

	kinds := []models.NotificationKind{
		models.NotificationLike,
		models.NotificationComment,
		models.NotificationMention,
		models.NotificationShare,
		models.NotificationFriendAccept,
	}

	for i := 0; i < count; i++ {
		kind := kinds[rand.Intn(len(kinds))]
		target := users[rand.Intn(len(users))]
		actor := users[rand.Intn(len(users))]
		if actor.ID == target.ID {
			continue
		}

		n := models.Notification{
			UserID:    target.ID,
			ActorID:   models.StringPtr(actor.ID),
			Kind:      kind,
			IsRead:    rand.Float32() < 0.6,
			CreatedAt: gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now()).UTC(),
		}
		if kind != models.NotificationFriendAccept && len(posts) > 0 {
			n.PostID = models.StringPtr(posts[rand.Intn(len(posts))].ID)
		}
		if err := s.db.Omit(clause.Associations).Create(&n).Error; err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}
	}

	logger.Log.Info("Created notifications", zap.Int("count", count))
	return nil
}

func seedUsername() string {
	name := strings.ToLower(gofakeit.Username())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, name)
	if len(name) < 3 {
		name += fmt.Sprintf("%04d", rand.Intn(10000))
	}
	if len(name) > 26 {
		name = name[:26]
	}
	return name
}

// postContent sometimes mentions another user
func postContent(users []models.User) string {
	content := gofakeit.HipsterSentence()
	if rand.Float32() < 0.15 {
		content += " @" + users[rand.Intn(len(users))].Username
	}
	return content
}

func avatarURL(username string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username)
}

func userIDs(users []models.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
