package telegram

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// MTProtoClient implements domain.MessagingClient using the gotd/td library.
// One instance wraps one authenticated account session.
type MTProtoClient struct {
	client *telegram.Client

	apiID   int
	apiHash string

	sessionStorage *FileSessionStorage
	phoneNumber    string

	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{}

	logger zerolog.Logger

	api *tg.Client

	rateLimiter *rate.Limiter

	// peers caches access hashes learned from resolution responses. The
	// provider rejects most user-targeted calls without a known hash, so
	// contact resolution doubles as cache warm-up.
	peers   map[int64]int64 // userID -> accessHash
	peersMu sync.Mutex

	// channels caches resolved target peers keyed by target id.
	channels   map[int64]tg.InputChannel
	channelsMu sync.Mutex
}

// ClientConfig holds configuration for MTProtoClient
type ClientConfig struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	SessionDir  string
	Logger      zerolog.Logger
}

// MaskPhone masks a phone number for logging (keeps first 2 and last 2 digits)
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

// NewMTProtoClient creates a new MTProto client instance
func NewMTProtoClient(cfg ClientConfig) (*MTProtoClient, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}
	if cfg.PhoneNumber == "" {
		return nil, fmt.Errorf("PhoneNumber is required")
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./sessions"
	}

	sessionStorage, err := NewFileSessionStorage(cfg.SessionDir, cfg.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	return &MTProtoClient{
		apiID:          cfg.APIID,
		apiHash:        cfg.APIHash,
		phoneNumber:    cfg.PhoneNumber,
		sessionStorage: sessionStorage,
		logger:         cfg.Logger.With().Str("component", "mtproto_client").Str("phone", MaskPhone(cfg.PhoneNumber)).Logger(),
		rateLimiter:    rate.NewLimiter(rate.Every(time.Second), 10),
		peers:          make(map[int64]int64),
		channels:       make(map[int64]tg.InputChannel),
	}, nil
}

// AccountID returns the phone number identifying this session
func (c *MTProtoClient) AccountID() string {
	return c.phoneNumber
}

// Connect connects to Telegram. The session must already be authorized (see
// cmd/auth); an unauthorized session is a permanent failure surfaced as
// domain.ErrAuthenticationFailed.
func (c *MTProtoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already connected")
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return fmt.Errorf("disconnect in progress, cannot connect")
	}
	defer c.mu.Unlock()

	c.logger.Info().Msg("connecting to Telegram")

	c.client = telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: c.sessionStorage,
	})

	clientCtx, cancel := context.WithCancel(context.Background())
	c.cancelFunc = cancel

	readyChan := make(chan struct{})
	errChan := make(chan error, 1)
	c.runDone = make(chan struct{})

	go func() {
		defer close(c.runDone)
		err := c.client.Run(clientCtx, func(ctx context.Context) error {
			c.api = c.client.API()

			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to check auth status: %w", err)
			}

			if !status.Authorized {
				c.logger.Error().Msg("session is not authorized")
				return domain.ErrAuthenticationFailed
			}

			c.connected = true
			c.logger.Info().Msg("session restored from storage")

			close(readyChan)

			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case errChan <- err:
		default:
		}
	}()

	select {
	case <-readyChan:
		return nil
	case err := <-errChan:
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Disconnect disconnects from Telegram with graceful shutdown. Safe to call
// concurrently and repeatedly.
func (c *MTProtoClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()

	if c.disconnecting {
		c.mu.Unlock()
		return nil
	}
	if !c.connected {
		c.mu.Unlock()
		return nil
	}

	c.logger.Info().Msg("disconnecting from Telegram")

	c.disconnecting = true
	cancelFunc := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()

		if runDone != nil {
			select {
			case <-runDone:
			case <-ctx.Done():
				c.logger.Warn().Msg("disconnect timeout reached while waiting for client shutdown")
			}
		}
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	c.logger.Info().Msg("disconnected from Telegram")
	return nil
}

// IsConnected checks if client is connected to Telegram
func (c *MTProtoClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ready returns the API handle or ErrNotConnected, applying the rate limit.
func (c *MTProtoClient) ready(ctx context.Context) (*tg.Client, error) {
	c.mu.RLock()
	api := c.api
	connected := c.connected
	c.mu.RUnlock()

	if !connected || api == nil {
		return nil, domain.ErrNotConnected
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	return api, nil
}

// cacheUsers stores access hashes from any provider response carrying users.
func (c *MTProtoClient) cacheUsers(users []tg.UserClass) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			c.peers[user.ID] = user.AccessHash
		}
	}
}

// inputUser builds an InputUser from the peer cache.
func (c *MTProtoClient) inputUser(userID int64) (*tg.InputUser, bool) {
	c.peersMu.Lock()
	hash, ok := c.peers[userID]
	c.peersMu.Unlock()
	if !ok {
		return nil, false
	}
	return &tg.InputUser{UserID: userID, AccessHash: hash}, true
}

// inviteHash extracts the invite hash from a t.me invite link, empty when the
// ref is not an invite link.
func inviteHash(ref string) string {
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "http://")
	switch {
	case strings.HasPrefix(ref, "t.me/+"):
		return strings.TrimPrefix(ref, "t.me/+")
	case strings.HasPrefix(ref, "t.me/joinchat/"):
		return strings.TrimPrefix(ref, "t.me/joinchat/")
	}
	return ""
}

// username extracts a resolvable username from a ref, empty when none.
func username(ref string) string {
	if strings.HasPrefix(ref, "@") {
		return strings.TrimPrefix(ref, "@")
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(ref, "https://"), "http://")
	if strings.HasPrefix(trimmed, "t.me/") && !strings.ContainsAny(strings.TrimPrefix(trimmed, "t.me/"), "+/") {
		return strings.TrimPrefix(trimmed, "t.me/")
	}
	return ""
}

// resolveTarget resolves a target to an InputChannel, caching the result.
func (c *MTProtoClient) resolveTarget(ctx context.Context, api *tg.Client, target *domain.Target) (*tg.InputChannel, error) {
	c.channelsMu.Lock()
	cached, ok := c.channels[target.ID]
	c.channelsMu.Unlock()
	if ok {
		return &cached, nil
	}

	var channel *tg.Channel

	if name := username(target.InviteRef); name != "" {
		resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: name,
		})
		if err != nil {
			return nil, classifyError(err)
		}
		c.cacheUsers(resolved.Users)
		channel = channelFromChats(resolved.Chats)
	} else if hash := inviteHash(target.InviteRef); hash != "" {
		invite, err := api.MessagesCheckChatInvite(ctx, hash)
		if err != nil {
			return nil, classifyError(err)
		}
		switch v := invite.(type) {
		case *tg.ChatInviteAlready:
			channel = channelFromChats([]tg.ChatClass{v.Chat})
		case *tg.ChatInvitePeek:
			channel = channelFromChats([]tg.ChatClass{v.Chat})
		default:
			// Not a member; the target must be joined before it can be
			// operated on.
			return nil, domain.ErrTargetUnreachable
		}
	} else {
		return nil, fmt.Errorf("unresolvable target ref: %q", target.InviteRef)
	}

	if channel == nil {
		return nil, domain.ErrTargetUnreachable
	}

	input := tg.InputChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
	c.channelsMu.Lock()
	c.channels[target.ID] = input
	c.channelsMu.Unlock()

	return &input, nil
}

// channelFromChats picks the first channel out of a chat list
func channelFromChats(chats []tg.ChatClass) *tg.Channel {
	for _, chat := range chats {
		if channel, ok := chat.(*tg.Channel); ok {
			return channel
		}
	}
	return nil
}

// GetMember returns the user's membership status in the target
func (c *MTProtoClient) GetMember(ctx context.Context, target *domain.Target, userID int64) (domain.MemberStatus, error) {
	api, err := c.ready(ctx)
	if err != nil {
		return "", err
	}

	channel, err := c.resolveTarget(ctx, api, target)
	if err != nil {
		return "", err
	}

	participant := tg.InputPeerClass(&tg.InputPeerUser{UserID: userID})
	if input, ok := c.inputUser(userID); ok {
		participant = &tg.InputPeerUser{UserID: input.UserID, AccessHash: input.AccessHash}
	}

	res, err := api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     channel,
		Participant: participant,
	})
	if err != nil {
		return "", classifyError(err)
	}
	c.cacheUsers(res.Users)

	switch res.Participant.(type) {
	case *tg.ChannelParticipantCreator:
		return domain.MemberStatusCreator, nil
	case *tg.ChannelParticipantAdmin:
		return domain.MemberStatusAdmin, nil
	case *tg.ChannelParticipantBanned:
		return domain.MemberStatusBanned, nil
	case *tg.ChannelParticipantLeft:
		return domain.MemberStatusLeft, nil
	default:
		return domain.MemberStatusMember, nil
	}
}

// AddMember adds the user to the target directly
func (c *MTProtoClient) AddMember(ctx context.Context, target *domain.Target, userID int64) error {
	api, err := c.ready(ctx)
	if err != nil {
		return err
	}

	channel, err := c.resolveTarget(ctx, api, target)
	if err != nil {
		return err
	}

	input, ok := c.inputUser(userID)
	if !ok {
		// Without a known access hash the provider rejects the add; the
		// caller should resolve the contact first.
		return fmt.Errorf("%w: no access hash for user %d", domain.ErrContactRequired, userID)
	}

	c.logger.Info().Int64("user_id", userID).Int64("target_id", target.ID).Msg("adding user to target")

	_, err = api.ChannelsInviteToChannel(ctx, &tg.ChannelsInviteToChannelRequest{
		Channel: channel,
		Users:   []tg.InputUserClass{input},
	})
	if err != nil {
		return classifyError(err)
	}

	return nil
}

// SendDirectMessage sends a private message to the user
func (c *MTProtoClient) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	api, err := c.ready(ctx)
	if err != nil {
		return err
	}

	input, ok := c.inputUser(userID)
	if !ok {
		return fmt.Errorf("%w: no access hash for user %d", domain.ErrContactRequired, userID)
	}

	_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     &tg.InputPeerUser{UserID: input.UserID, AccessHash: input.AccessHash},
		Message:  text,
		RandomID: rand.Int63(),
	})
	if err != nil {
		return classifyError(err)
	}

	return nil
}

// Join joins the target behind the invite ref and returns its canonical
// descriptor. Already being a member is success.
func (c *MTProtoClient) Join(ctx context.Context, inviteRef string) (*domain.TargetDescriptor, error) {
	api, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	if hash := inviteHash(inviteRef); hash != "" {
		updates, err := api.MessagesImportChatInvite(ctx, hash)
		if err != nil {
			classified := classifyError(err)
			if classified == domain.ErrAlreadyMember {
				// Look the chat up to recover its canonical id.
				invite, checkErr := api.MessagesCheckChatInvite(ctx, hash)
				if checkErr != nil {
					return nil, classifyError(checkErr)
				}
				if already, ok := invite.(*tg.ChatInviteAlready); ok {
					if channel := channelFromChats([]tg.ChatClass{already.Chat}); channel != nil {
						return &domain.TargetDescriptor{ID: channel.ID, Title: channel.Title}, domain.ErrAlreadyMember
					}
				}
				return nil, domain.ErrTargetUnreachable
			}
			return nil, classified
		}

		if channel := channelFromUpdates(updates); channel != nil {
			return &domain.TargetDescriptor{ID: channel.ID, Title: channel.Title}, nil
		}
		return nil, fmt.Errorf("join succeeded but no channel in response")
	}

	if name := username(inviteRef); name != "" {
		resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: name,
		})
		if err != nil {
			return nil, classifyError(err)
		}

		channel := channelFromChats(resolved.Chats)
		if channel == nil {
			return nil, domain.ErrTargetUnreachable
		}

		_, err = api.ChannelsJoinChannel(ctx, &tg.InputChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		})
		if err != nil {
			classified := classifyError(err)
			if classified == domain.ErrAlreadyMember {
				return &domain.TargetDescriptor{ID: channel.ID, Title: channel.Title}, domain.ErrAlreadyMember
			}
			return nil, classified
		}

		return &domain.TargetDescriptor{ID: channel.ID, Title: channel.Title}, nil
	}

	return nil, fmt.Errorf("unresolvable invite ref: %q", inviteRef)
}

// channelFromUpdates extracts the joined channel out of an updates response
func channelFromUpdates(u tg.UpdatesClass) *tg.Channel {
	switch updates := u.(type) {
	case *tg.Updates:
		return channelFromChats(updates.Chats)
	case *tg.UpdatesCombined:
		return channelFromChats(updates.Chats)
	}
	return nil
}

// ResolveIdentity looks the user up by id, requiring a cached access hash
func (c *MTProtoClient) ResolveIdentity(ctx context.Context, userID int64) (*domain.UserDescriptor, error) {
	api, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	input, ok := c.inputUser(userID)
	if !ok {
		input = &tg.InputUser{UserID: userID}
	}

	users, err := api.UsersGetUsers(ctx, []tg.InputUserClass{input})
	if err != nil {
		return nil, classifyError(err)
	}
	c.cacheUsers(users)

	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == userID {
			return &domain.UserDescriptor{
				ID:         user.ID,
				AccessHash: user.AccessHash,
				Username:   user.Username,
				FirstName:  user.FirstName,
			}, nil
		}
	}

	return nil, domain.ErrUserNotFound
}

// SearchAlias searches global usernames for the alias
func (c *MTProtoClient) SearchAlias(ctx context.Context, alias string) (*domain.UserDescriptor, error) {
	api, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	alias = strings.TrimPrefix(alias, "@")
	if alias == "" {
		return nil, domain.ErrUserNotFound
	}

	found, err := api.ContactsSearch(ctx, &tg.ContactsSearchRequest{
		Q:     alias,
		Limit: 10,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	c.cacheUsers(found.Users)

	for _, u := range found.Users {
		if user, ok := u.(*tg.User); ok && strings.EqualFold(user.Username, alias) {
			return &domain.UserDescriptor{
				ID:         user.ID,
				AccessHash: user.AccessHash,
				Username:   user.Username,
				FirstName:  user.FirstName,
			}, nil
		}
	}

	return nil, domain.ErrUserNotFound
}

// ImportContactByPhone imports the phone into the account's contacts to gain
// mutual visibility
func (c *MTProtoClient) ImportContactByPhone(ctx context.Context, phone string) (*domain.UserDescriptor, error) {
	api, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	imported, err := api.ContactsImportContacts(ctx, []tg.InputPhoneContact{
		{
			ClientID:  rand.Int63(),
			Phone:     phone,
			FirstName: "Invitee",
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	c.cacheUsers(imported.Users)

	for _, u := range imported.Users {
		if user, ok := u.(*tg.User); ok {
			return &domain.UserDescriptor{
				ID:         user.ID,
				AccessHash: user.AccessHash,
				Username:   user.Username,
				FirstName:  user.FirstName,
			}, nil
		}
	}

	return nil, domain.ErrUserNotFound
}

// MemberCount reads the target's participant count
func (c *MTProtoClient) MemberCount(ctx context.Context, target *domain.Target) (int, error) {
	api, err := c.ready(ctx)
	if err != nil {
		return 0, err
	}

	channel, err := c.resolveTarget(ctx, api, target)
	if err != nil {
		return 0, err
	}

	full, err := api.ChannelsGetFullChannel(ctx, channel)
	if err != nil {
		return 0, classifyError(err)
	}

	if channelFull, ok := full.FullChat.(*tg.ChannelFull); ok {
		return channelFull.ParticipantsCount, nil
	}

	return 0, fmt.Errorf("unexpected full chat type for target %d", target.ID)
}

// Ensure MTProtoClient implements domain.MessagingClient interface
var _ domain.MessagingClient = (*MTProtoClient)(nil)
