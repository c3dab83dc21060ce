package memory

import (
	"context"
	"sort"

	"github.com/lalith-99/aipdfly/internal/models"
)

type UserStore struct{ db *DB }

func (s *UserStore) Upsert(_ context.Context, p models.UserProfile) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[p.ID]
	if !ok {
		u.Role = models.RoleCustomer
	}
	applyProfile(&u, p)
	s.db.users[p.ID] = u
	return &u, nil
}

func (s *UserStore) Update(_ context.Context, p models.UserProfile, role models.Role) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[p.ID]
	if !ok {
		return false, nil
	}
	applyProfile(&u, p)
	u.Role = role
	s.db.users[p.ID] = u
	return true, nil
}

func applyProfile(u *models.User, p models.UserProfile) {
	u.ID = p.ID
	u.Username = p.Username
	u.EmailAddress = p.EmailAddress
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.ImageURL = p.ImageURL
	u.PhoneNumber = p.PhoneNumber
	u.LastSignInAt = p.LastSignInAt
	u.CreatedAt = p.CreatedAt
	u.UpdatedAt = p.UpdatedAt
}

func (s *UserStore) UpdateRole(_ context.Context, userID string, role models.Role) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[userID]
	if !ok {
		return nil, nil
	}
	u.Role = role
	s.db.users[userID] = u
	return &u, nil
}

func (s *UserStore) GetByID(_ context.Context, userID string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *UserStore) List(_ context.Context) ([]models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.User, 0, len(s.db.users))
	for _, u := range s.db.users {
		out = append(out, u)
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (s *UserStore) Delete(_ context.Context, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, ch := range s.db.chats {
		if ch.UserID == userID {
			s.db.deleteChatLocked(id)
		}
	}
	shares := s.db.shares[:0]
	for _, sh := range s.db.shares {
		if sh.UserID != userID {
			shares = append(shares, sh)
		}
	}
	s.db.shares = shares
	delete(s.db.subs, userID)
	delete(s.db.users, userID)
	return nil
}

type ChatStore struct{ db *DB }

func (s *ChatStore) Create(_ context.Context, userID, pdfName, pdfURL, fileKey string) (*models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ch := models.Chat{
		ID:        s.db.next(),
		UserID:    userID,
		PDFName:   pdfName,
		PDFURL:    pdfURL,
		FileKey:   fileKey,
		CreatedAt: s.db.Now(),
	}
	s.db.chats[ch.ID] = ch
	return &ch, nil
}

func (s *ChatStore) GetByID(_ context.Context, chatID int64) (*models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ch, ok := s.db.chats[chatID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *ChatStore) ListByUser(_ context.Context, userID string) ([]models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Chat, 0)
	for _, ch := range s.db.chats {
		if ch.UserID == userID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *ChatStore) Rename(_ context.Context, chatID int64, pdfName string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ch, ok := s.db.chats[chatID]
	if !ok {
		return false, nil
	}
	ch.PDFName = pdfName
	s.db.chats[chatID] = ch
	return true, nil
}

func (s *ChatStore) Delete(_ context.Context, chatID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.deleteChatLocked(chatID)
	return nil
}

type MessageStore struct{ db *DB }

func (s *MessageStore) Create(_ context.Context, chatID int64, role models.MessageRole, content string) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	m := models.Message{ID: s.db.next(), ChatID: chatID, Role: role, Content: content, CreatedAt: s.db.Now()}
	s.db.messages = append(s.db.messages, m)
	return &m, nil
}

func (s *MessageStore) ListByChat(_ context.Context, chatID int64) ([]models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Message, 0)
	for _, m := range s.db.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

type SubscriptionStore struct{ db *DB }

func (s *SubscriptionStore) Create(_ context.Context, in models.Subscription) (*models.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for uid, existing := range s.db.subs {
		if uid == in.UserID {
			continue
		}
		if existing.CustomerID == in.CustomerID {
			return nil, conflict("insert subscription")
		}
		if in.SubscriptionID != nil && existing.SubscriptionID != nil && *existing.SubscriptionID == *in.SubscriptionID {
			return nil, conflict("insert subscription")
		}
	}
	if prev, ok := s.db.subs[in.UserID]; ok {
		in.ID = prev.ID
	} else {
		in.ID = s.db.next()
	}
	s.db.subs[in.UserID] = in
	return &in, nil
}

func (s *SubscriptionStore) UpdateBySubscriptionID(_ context.Context, subscriptionID string, u models.SubscriptionUpdate) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for uid, sub := range s.db.subs {
		if sub.SubscriptionID == nil || *sub.SubscriptionID != subscriptionID {
			continue
		}
		status := u.Status
		sub.Status = &status
		keep(&sub.PaymentStatus, u.PaymentStatus)
		keep(&sub.CheckoutStatus, u.CheckoutStatus)
		keep(&sub.CardLast4, u.CardLast4)
		keep(&sub.CardBrand, u.CardBrand)
		keep(&sub.BillingAddress, u.BillingAddress)
		if u.Amount != nil {
			sub.Amount = u.Amount
		}
		if u.PeriodEnd != nil {
			sub.CurrentPeriodEnd = u.PeriodEnd
		}
		s.db.subs[uid] = sub
		n++
	}
	return n, nil
}

func keep(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}

func (s *SubscriptionStore) UpdateBillingAddressByCustomerID(_ context.Context, customerID, address string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for uid, sub := range s.db.subs {
		if sub.CustomerID == customerID {
			addr := address
			sub.BillingAddress = &addr
			s.db.subs[uid] = sub
			n++
		}
	}
	return n, nil
}

func (s *SubscriptionStore) GetByUserID(_ context.Context, userID string) (*models.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	sub, ok := s.db.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *SubscriptionStore) ListWithUsers(_ context.Context) ([]models.UserSubscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	users := make([]models.User, 0)
	for uid := range s.db.subs {
		if u, ok := s.db.users[uid]; ok {
			users = append(users, u)
		}
	}
	sortByCreatedDesc(users)

	out := make([]models.UserSubscription, 0, len(users))
	for _, u := range users {
		out = append(out, models.UserSubscription{User: u, Subscription: s.db.subs[u.ID]})
	}
	return out, nil
}

type ShareStore struct{ db *DB }

func (s *ShareStore) Create(_ context.Context, chatID int64, userID, shareKey string) (*models.Share, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, sh := range s.db.shares {
		if sh.ChatID == chatID || sh.ShareKey == shareKey {
			return nil, conflict("insert share")
		}
	}
	sh := models.Share{ID: s.db.next(), ChatID: chatID, UserID: userID, ShareKey: shareKey, CreatedAt: s.db.Now()}
	s.db.shares = append(s.db.shares, sh)
	return &sh, nil
}

func (s *ShareStore) ListByChat(_ context.Context, chatID int64) ([]models.Share, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Share, 0)
	for _, sh := range s.db.shares {
		if sh.ChatID == chatID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *ShareStore) SetPassword(_ context.Context, chatID int64, hash *string) ([]models.Share, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Share, 0)
	for i := range s.db.shares {
		if s.db.shares[i].ChatID == chatID {
			s.db.shares[i].PasswordHash = hash
			out = append(out, s.db.shares[i])
		}
	}
	return out, nil
}

func (s *ShareStore) DeleteByChat(_ context.Context, chatID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	kept := s.db.shares[:0]
	for _, sh := range s.db.shares {
		if sh.ChatID == chatID {
			n++
			continue
		}
		kept = append(kept, sh)
	}
	s.db.shares = kept
	return n, nil
}

func (s *ShareStore) GetSharedChat(_ context.Context, shareKey string) (*models.SharedChat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, sh := range s.db.shares {
		if sh.ShareKey != shareKey {
			continue
		}
		ch, ok := s.db.chats[sh.ChatID]
		if !ok {
			return nil, nil
		}
		return &models.SharedChat{Share: sh, Chat: ch}, nil
	}
	return nil, nil
}

func (s *ShareStore) ListWithChats(_ context.Context, userID string) ([]models.SharedChat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.SharedChat, 0)
	for i := len(s.db.shares) - 1; i >= 0; i-- {
		sh := s.db.shares[i]
		ch, ok := s.db.chats[sh.ChatID]
		if !ok || (userID != "" && ch.UserID != userID) {
			continue
		}
		out = append(out, models.SharedChat{Share: sh, Chat: ch})
	}
	return out, nil
}
