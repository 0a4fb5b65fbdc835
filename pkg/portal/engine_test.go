// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package portal_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/dbutil"

	"github.com/beaverbot/portal/pkg/database"
	"github.com/beaverbot/portal/pkg/delivery"
	"github.com/beaverbot/portal/pkg/portal"
)

type fakeSend struct {
	ChannelID string
	MessageID string
	Payload   delivery.WebhookPayload
}

type fakeEdit struct {
	ChannelID string
	MessageID string
	Payload   delivery.WebhookPayload
}

type fakeNotice struct {
	ChannelID string
	MessageID string
	Content   string
}

// fakeAdapter is an in-memory delivery.Adapter. All mutating calls are
// recorded so tests can assert on the exact platform traffic.
type fakeAdapter struct {
	mu       sync.Mutex
	counter  int
	events   chan delivery.Event
	channels map[string]*delivery.Channel
	webhooks map[string]map[string]*delivery.Webhook
	messages map[string]*delivery.Message

	sends     []fakeSend
	edits     []fakeEdit
	deletes   []string
	notices   []fakeNotice
	reactions []string
	revoked   []string

	manage       bool
	knownEmoji   map[string]bool
	failSendIn   map[string]bool
	failDeleteIn map[string]bool
}

func newFakeAdapter(channelIDs ...string) *fakeAdapter {
	a := &fakeAdapter{
		events:       make(chan delivery.Event, 16),
		channels:     map[string]*delivery.Channel{},
		webhooks:     map[string]map[string]*delivery.Webhook{},
		messages:     map[string]*delivery.Message{},
		manage:       true,
		knownEmoji:   map[string]bool{},
		failSendIn:   map[string]bool{},
		failDeleteIn: map[string]bool{},
	}
	for _, id := range channelIDs {
		a.channels[id] = &delivery.Channel{
			ID:        id,
			GuildID:   "guild-" + id,
			GuildName: "Guild " + id,
			Name:      "chan-" + id,
		}
	}
	return a
}

func (a *fakeAdapter) nextID(prefix string) string {
	a.counter++
	return fmt.Sprintf("%s%d", prefix, a.counter)
}

func msgKey(channelID, messageID string) string {
	return channelID + "/" + messageID
}

func (a *fakeAdapter) Connect(context.Context) error { return nil }
func (a *fakeAdapter) Close() error                  { return nil }
func (a *fakeAdapter) Events() <-chan delivery.Event { return a.events }
func (a *fakeAdapter) SelfID() string                { return "relay-self" }

func (a *fakeAdapter) HasEmoji(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.knownEmoji[id]
}

func (a *fakeAdapter) EmojiURL(id string, _ bool) string {
	return "https://cdn.example/emoji/" + id
}

func (a *fakeAdapter) ResolveChannel(_ context.Context, channelID string) *delivery.Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channels[channelID]
}

func (a *fakeAdapter) FetchMessage(_ context.Context, channelID, messageID string) (*delivery.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := a.messages[msgKey(channelID, messageID)]
	if msg == nil {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	return msg, nil
}

func (a *fakeAdapter) DeleteMessage(_ context.Context, channelID, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failDeleteIn[channelID] {
		return fmt.Errorf("missing permission in %s", channelID)
	}
	delete(a.messages, msgKey(channelID, messageID))
	a.deletes = append(a.deletes, msgKey(channelID, messageID))
	return nil
}

func (a *fakeAdapter) SendNotice(_ context.Context, channelID, content string) (*delivery.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := &delivery.Message{ID: a.nextID("n"), ChannelID: channelID, Content: content}
	a.messages[msgKey(channelID, msg.ID)] = msg
	a.notices = append(a.notices, fakeNotice{ChannelID: channelID, MessageID: msg.ID, Content: content})
	return msg, nil
}

func (a *fakeAdapter) MessageLink(channelID, messageID string) string {
	return "https://chat.example/" + channelID + "/" + messageID
}

func (a *fakeAdapter) ListWebhooks(_ context.Context, channelID string) ([]*delivery.Webhook, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var hooks []*delivery.Webhook
	for _, hook := range a.webhooks[channelID] {
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

func (a *fakeAdapter) CreateWebhook(_ context.Context, channelID, _ string) (*delivery.Webhook, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	hook := &delivery.Webhook{ID: a.nextID("wh"), Token: a.nextID("tok"), ChannelID: channelID}
	if a.webhooks[channelID] == nil {
		a.webhooks[channelID] = map[string]*delivery.Webhook{}
	}
	a.webhooks[channelID][hook.ID] = hook
	return hook, nil
}

func (a *fakeAdapter) DeleteWebhook(_ context.Context, wh *delivery.Webhook) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.webhooks[wh.ChannelID], wh.ID)
	return nil
}

func (a *fakeAdapter) SendWebhookMessage(_ context.Context, wh *delivery.Webhook, payload *delivery.WebhookPayload) (*delivery.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failSendIn[wh.ChannelID] {
		return nil, fmt.Errorf("send failed in %s", wh.ChannelID)
	}
	msg := &delivery.Message{
		ID:        a.nextID("m"),
		ChannelID: wh.ChannelID,
		WebhookID: wh.ID,
		Content:   payload.Content,
	}
	a.messages[msgKey(wh.ChannelID, msg.ID)] = msg
	a.sends = append(a.sends, fakeSend{ChannelID: wh.ChannelID, MessageID: msg.ID, Payload: *payload})
	return msg, nil
}

func (a *fakeAdapter) EditWebhookMessage(_ context.Context, wh *delivery.Webhook, messageID string, payload *delivery.WebhookPayload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := a.messages[msgKey(wh.ChannelID, messageID)]
	if msg == nil {
		return fmt.Errorf("message %s not found", messageID)
	}
	msg.Content = payload.Content
	a.edits = append(a.edits, fakeEdit{ChannelID: wh.ChannelID, MessageID: messageID, Payload: *payload})
	return nil
}

func (a *fakeAdapter) DeleteWebhookMessage(_ context.Context, wh *delivery.Webhook, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failDeleteIn[wh.ChannelID] {
		return fmt.Errorf("missing permission in %s", wh.ChannelID)
	}
	delete(a.messages, msgKey(wh.ChannelID, messageID))
	a.deletes = append(a.deletes, msgKey(wh.ChannelID, messageID))
	return nil
}

func (a *fakeAdapter) CreateInvite(_ context.Context, channelID string) (string, error) {
	return "https://chat.example/invite/" + channelID, nil
}

func (a *fakeAdapter) ApplyReaction(_ context.Context, channelID, messageID, emoji string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reactions = append(a.reactions, msgKey(channelID, messageID)+"/"+emoji)
	return nil
}

func (a *fakeAdapter) RevokeSendPermission(_ context.Context, channelID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, channelID+"/"+userID)
	return nil
}

func (a *fakeAdapter) HasManagePermission(context.Context, *delivery.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.manage
}

func (a *fakeAdapter) DownloadAttachment(_ context.Context, att *delivery.Attachment) ([]byte, error) {
	return []byte("data-" + att.ID), nil
}

func (a *fakeAdapter) DownloadSticker(_ context.Context, sticker *delivery.Sticker) ([]byte, error) {
	return nil, fmt.Errorf("sticker %s not available", sticker.ID)
}

func (a *fakeAdapter) sendsTo(channelID string) []fakeSend {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []fakeSend
	for _, send := range a.sends {
		if send.ChannelID == channelID {
			out = append(out, send)
		}
	}
	return out
}

func (a *fakeAdapter) noticeCount(channelID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, notice := range a.notices {
		if notice.ChannelID == channelID {
			n++
		}
	}
	return n
}

type testEnv struct {
	engine  *portal.Engine
	adapter *fakeAdapter
	db      *database.Database
}

func newTestEnv(t *testing.T, channelIDs ...string) *testEnv {
	t.Helper()
	uri := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", filepath.Join(t.TempDir(), "portal.db"))
	rawDB, err := dbutil.NewWithDialect(uri, "sqlite3")
	require.NoError(t, err)
	rawDB.Log = dbutil.ZeroLogger(zerolog.Nop())
	db := database.New(rawDB)
	require.NoError(t, db.Upgrade(context.Background()))
	t.Cleanup(func() {
		_ = db.Close()
	})

	adapter := newFakeAdapter(channelIDs...)
	engine, err := portal.NewEngine(db, adapter, portal.Config{
		ReplyLookupRetryDelay: 10 * time.Millisecond,
		SetupTimeout:          5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	return &testEnv{engine: engine, adapter: adapter, db: db}
}

// connectAll wires the given channels into one portal, each with a webhook
// already provisioned, and returns the portal id.
func (env *testEnv) connectAll(t *testing.T, channelIDs ...string) string {
	t.Helper()
	ctx := context.Background()
	portalID, err := env.db.Portal.GenerateID(ctx)
	require.NoError(t, err)
	require.NoError(t, env.db.Portal.Insert(ctx, &database.Portal{ID: portalID, Name: "test", Emoji: "🦫"}))
	for _, channelID := range channelIDs {
		hook, err := env.adapter.CreateWebhook(ctx, channelID, "Portal Relay")
		require.NoError(t, err)
		require.NoError(t, env.db.Connection.Insert(ctx, &database.Connection{
			ChannelID:    channelID,
			PortalID:     portalID,
			GuildID:      "guild-" + channelID,
			GuildName:    "Guild " + channelID,
			ChannelName:  "chan-" + channelID,
			WebhookID:    hook.ID,
			WebhookToken: hook.Token,
		}))
	}
	return portalID
}

func userMessage(channelID, messageID, content string) *delivery.Message {
	return &delivery.Message{
		ID:         messageID,
		ChannelID:  channelID,
		GuildID:    "guild-" + channelID,
		AuthorID:   "author1",
		AuthorName: "Beaver",
		Content:    content,
	}
}

func (env *testEnv) create(msg *delivery.Message) {
	env.engine.HandleEvent(&delivery.MessageCreate{Message: msg})
	env.engine.Flush()
}

func TestCreate_FanOut(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	portalID := env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "hello portal"))

	require.Len(t, env.adapter.sends, 2)
	assert.Len(t, env.adapter.sendsTo("chan2"), 1)
	assert.Len(t, env.adapter.sendsTo("chan3"), 1)
	assert.Empty(t, env.adapter.sendsTo("chan1"))
	for _, send := range env.adapter.sends {
		assert.Equal(t, "hello portal", send.Payload.Content)
		assert.Equal(t, "Beaver (Guild chan1)", send.Payload.Username)
	}

	ctx := context.Background()
	groupID, err := env.db.Message.GroupIDForMessage(ctx, "orig1")
	require.NoError(t, err)
	require.NotEmpty(t, groupID)
	rows, err := env.db.Message.GetGroup(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	byType := map[database.MessageType]int{}
	for _, row := range rows {
		assert.Equal(t, portalID, row.PortalID)
		byType[row.Type]++
	}
	assert.Equal(t, 1, byType[database.MessageTypeOriginal])
	assert.Equal(t, 2, byType[database.MessageTypeLinked])
}

func TestCreate_ChannelFailureDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	env.connectAll(t, "chan1", "chan2", "chan3")
	env.adapter.mu.Lock()
	env.adapter.failSendIn["chan2"] = true
	env.adapter.mu.Unlock()

	env.create(userMessage("chan1", "orig1", "hello"))

	assert.Empty(t, env.adapter.sendsTo("chan2"))
	require.Len(t, env.adapter.sendsTo("chan3"), 1)

	ctx := context.Background()
	groupID, err := env.db.Message.GroupIDForMessage(ctx, "orig1")
	require.NoError(t, err)
	require.NotEmpty(t, groupID)
	rows, err := env.db.Message.GetGroup(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, "chan2", row.ChannelID)
	}
}

func TestCreate_WebhookMessageNotPropagated(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	msg := userMessage("chan1", "orig1", "relayed copy")
	msg.WebhookID = "wh-other"
	env.create(msg)

	assert.Empty(t, env.adapter.sends)
	groupID, err := env.db.Message.GroupIDForMessage(context.Background(), "orig1")
	require.NoError(t, err)
	assert.Empty(t, groupID)
}

func TestCreate_UnconnectedChannelIgnored(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.create(userMessage("elsewhere", "orig1", "hello"))
	assert.Empty(t, env.adapter.sends)
}

func TestCreate_StaleConnectionRemoved(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	// chan3 is connected in the database but gone on the platform.
	env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "hello"))

	require.Len(t, env.adapter.sends, 1)
	assert.Equal(t, "chan2", env.adapter.sends[0].ChannelID)
	conn, err := env.db.Connection.GetByChannel(context.Background(), "chan3")
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestCreate_WebhookRecreatedWhenRevoked(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	ctx := context.Background()
	conn, err := env.db.Connection.GetByChannel(ctx, "chan2")
	require.NoError(t, err)
	oldHookID := conn.WebhookID
	// Revoke the webhook platform-side without touching local state.
	env.adapter.mu.Lock()
	delete(env.adapter.webhooks["chan2"], oldHookID)
	env.adapter.mu.Unlock()

	env.create(userMessage("chan1", "orig1", "hello"))

	require.Len(t, env.adapter.sends, 1)
	conn, err = env.db.Connection.GetByChannel(ctx, "chan2")
	require.NoError(t, err)
	assert.NotEqual(t, oldHookID, conn.WebhookID)
	assert.NotEmpty(t, conn.WebhookToken)
}

func TestCreate_BannedUserDropped(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	portalID := env.connectAll(t, "chan1", "chan2")
	ctx := context.Background()
	require.NoError(t, env.db.LimitedAccount.Set(ctx, &database.LimitedAccount{
		UserID: "author1", PortalID: portalID, Banned: true,
	}))

	env.create(userMessage("chan1", "orig1", "spam"))

	assert.Empty(t, env.adapter.sends)
	assert.Contains(t, env.adapter.revoked, "chan1/author1")
}

func TestCreate_LimitedUserAllowedInOwnChannel(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	portalID := env.connectAll(t, "chan1", "chan2")
	ctx := context.Background()
	require.NoError(t, env.db.LimitedAccount.Set(ctx, &database.LimitedAccount{
		UserID: "author1", PortalID: portalID, ChannelID: "chan1",
	}))

	env.create(userMessage("chan1", "ok1", "from my channel"))
	require.Len(t, env.adapter.sends, 1)

	// The same user writing from another connected channel is dropped.
	env.create(userMessage("chan2", "no1", "from elsewhere"))
	assert.Len(t, env.adapter.sends, 1)
	assert.Contains(t, env.adapter.revoked, "chan2/author1")
}

func TestCreate_ReplyPreamble(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.create(userMessage("chan1", "orig1", "first"))
	require.Len(t, env.adapter.sends, 1)
	linkedID := env.adapter.sends[0].MessageID

	reply := userMessage("chan1", "orig2", "second")
	reply.ReferencedMessageID = "orig1"
	reply.ReferencedChannelID = "chan1"
	env.create(reply)

	require.Len(t, env.adapter.sends, 2)
	content := env.adapter.sends[1].Payload.Content
	lines := strings.SplitN(content, "\n", 2)
	require.Len(t, lines, 2)
	assert.Equal(t, "-# ↩ https://chat.example/chan2/"+linkedID, lines[0])
	assert.Equal(t, "second", lines[1])
}

func TestCreate_ReplyToUnlinkedMessage(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	reply := userMessage("chan1", "orig1", "hello?")
	reply.ReferencedMessageID = "never-relayed"
	env.create(reply)

	require.Len(t, env.adapter.sends, 1)
	assert.Equal(t, "-# ↩ reply to an unlinked message\nhello?", env.adapter.sends[0].Payload.Content)
}

func TestCreate_LinkifiedAttachmentFollowup(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	msg := userMessage("chan1", "orig1", "see attachment")
	msg.Attachments = []delivery.Attachment{{
		ID:          "att1",
		Filename:    "photo.png",
		URL:         "https://cdn.example/photo.png",
		Size:        123,
		ContentType: "image/png",
	}}
	env.create(msg)

	// Primary copy plus one follow-up carrying the attachment link.
	sends := env.adapter.sendsTo("chan2")
	require.Len(t, sends, 2)
	assert.Equal(t, "see attachment", sends[0].Payload.Content)
	assert.Equal(t, "https://cdn.example/photo.png", sends[1].Payload.Content)

	ctx := context.Background()
	groupID, err := env.db.Message.GroupIDForMessage(ctx, "orig1")
	require.NoError(t, err)
	rows, err := env.db.Message.GetGroup(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	var attRow *database.Message
	for _, row := range rows {
		if row.Type == database.MessageTypeLinkedAttachment {
			attRow = row
		}
	}
	require.NotNil(t, attRow)
	assert.Equal(t, "att1", attRow.AttachmentID)
}

func TestEdit_PropagatesToLinkedCopies(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "befor"))
	env.engine.HandleEvent(&delivery.MessageUpdate{Message: userMessage("chan1", "orig1", "before, fixed")})
	env.engine.Flush()

	require.Len(t, env.adapter.edits, 2)
	for _, edit := range env.adapter.edits {
		assert.Equal(t, "before, fixed", edit.Payload.Content)
	}
}

func TestEdit_LinkedCopyUpdateIgnored(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "hello"))
	linked := env.adapter.sendsTo("chan2")
	require.Len(t, linked, 1)

	// The platform echoes the engine's own EditWebhookMessage calls as
	// update events for the relayed copies. Those must not re-enter the
	// edit fan-out, or every edit would storm endlessly.
	env.adapter.mu.Lock()
	echo := *env.adapter.messages[msgKey("chan2", linked[0].MessageID)]
	env.adapter.mu.Unlock()
	require.NotEmpty(t, echo.WebhookID)
	env.engine.HandleEvent(&delivery.MessageUpdate{Message: &echo})
	env.engine.Flush()

	assert.Empty(t, env.adapter.edits)
}

func TestEdit_KeepsReplyPreamble(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.create(userMessage("chan1", "orig1", "first"))
	reply := userMessage("chan1", "orig2", "secnod")
	reply.ReferencedMessageID = "orig1"
	env.create(reply)

	env.engine.HandleEvent(&delivery.MessageUpdate{Message: userMessage("chan1", "orig2", "second")})
	env.engine.Flush()

	require.Len(t, env.adapter.edits, 1)
	preamble, rest := env.adapter.edits[0].Payload.Content, ""
	if idx := strings.IndexByte(preamble, '\n'); idx >= 0 {
		preamble, rest = preamble[:idx], preamble[idx+1:]
	}
	assert.True(t, strings.HasPrefix(preamble, "-# ↩ "), "edit lost the reply preamble: %q", preamble)
	assert.Equal(t, "second", rest)
}

func TestEdit_RemovedAttachmentDeletesFollowup(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	msg := userMessage("chan1", "orig1", "see attachment")
	msg.Attachments = []delivery.Attachment{{
		ID: "att1", Filename: "photo.png", URL: "https://cdn.example/photo.png", ContentType: "image/png",
	}}
	env.create(msg)

	env.engine.HandleEvent(&delivery.MessageUpdate{Message: userMessage("chan1", "orig1", "attachment removed")})
	env.engine.Flush()

	require.Len(t, env.adapter.deletes, 1)
	ctx := context.Background()
	groupID, err := env.db.Message.GroupIDForMessage(ctx, "orig1")
	require.NoError(t, err)
	rows, err := env.db.Message.GetGroup(ctx, groupID)
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotEqual(t, database.MessageTypeLinkedAttachment, row.Type)
	}
}

func TestEdit_UnmappedMessageIgnored(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.engine.HandleEvent(&delivery.MessageUpdate{Message: userMessage("chan1", "never-seen", "edit")})
	env.engine.Flush()
	assert.Empty(t, env.adapter.edits)
}

func TestDelete_PropagatesAndForgetsGroup(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "going away"))
	ctx := context.Background()
	groupID, err := env.db.Message.GroupIDForMessage(ctx, "orig1")
	require.NoError(t, err)

	env.engine.HandleEvent(&delivery.MessageDelete{ChannelID: "chan1", MessageID: "orig1"})
	env.engine.Flush()

	// Both linked copies deleted; the origin is already gone platform-side.
	assert.Len(t, env.adapter.deletes, 2)
	rows, err := env.db.Message.GetGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDelete_LinkedCopyDeletesWholeGroup(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "going away"))
	linked := env.adapter.sendsTo("chan2")
	require.Len(t, linked, 1)

	// A moderator deletes the relayed copy in chan2; the deletion must
	// propagate back to the origin and the other copy.
	env.engine.HandleEvent(&delivery.MessageDelete{ChannelID: "chan2", MessageID: linked[0].MessageID})
	env.engine.Flush()

	groupID, err := env.db.Message.GroupIDForMessage(context.Background(), "orig1")
	require.NoError(t, err)
	assert.Empty(t, groupID)
	assert.Len(t, env.adapter.deletes, 2)
}

func TestDelete_FailureNotifiesOnce(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.create(userMessage("chan1", "orig1", "stuck"))
	env.adapter.mu.Lock()
	env.adapter.failDeleteIn["chan2"] = true
	env.adapter.mu.Unlock()

	env.engine.HandleEvent(&delivery.MessageDelete{ChannelID: "chan1", MessageID: "orig1"})
	env.engine.Flush()

	require.Equal(t, 1, env.adapter.noticeCount("chan2"))
	env.adapter.mu.Lock()
	notice := env.adapter.notices[0]
	env.adapter.mu.Unlock()
	assert.Contains(t, notice.Content, "could not be deleted")
}

func TestReaction_PropagatesToOtherCopies(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2", "chan3")
	env.connectAll(t, "chan1", "chan2", "chan3")

	env.create(userMessage("chan1", "orig1", "react to me"))
	env.engine.HandleEvent(&delivery.ReactionAdd{
		ChannelID: "chan1", MessageID: "orig1", UserID: "author2", Emoji: "👍",
	})
	env.engine.Flush()

	require.Len(t, env.adapter.reactions, 2)
	for _, reaction := range env.adapter.reactions {
		assert.True(t, strings.HasSuffix(reaction, "/👍"))
		assert.False(t, strings.HasPrefix(reaction, "chan1/"))
	}
}

func TestReaction_OwnEchoIgnored(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.create(userMessage("chan1", "orig1", "react to me"))
	linked := env.adapter.sendsTo("chan2")
	require.Len(t, linked, 1)

	// ApplyReaction echoes back as a reaction event from the relay's own
	// user; mirroring it again would react to the origin message too.
	env.engine.HandleEvent(&delivery.ReactionAdd{
		ChannelID: "chan2", MessageID: linked[0].MessageID, UserID: env.adapter.SelfID(), Emoji: "👍",
	})
	env.engine.Flush()
	assert.Empty(t, env.adapter.reactions)
}

func TestReaction_UnmappedMessageIgnored(t *testing.T) {
	env := newTestEnv(t, "chan1", "chan2")
	env.connectAll(t, "chan1", "chan2")

	env.engine.HandleEvent(&delivery.ReactionAdd{
		ChannelID: "chan1", MessageID: "never-seen", UserID: "author2", Emoji: "👍",
	})
	env.engine.Flush()
	assert.Empty(t, env.adapter.reactions)
}
