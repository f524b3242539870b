// Файл peers.go — чтение диалогов и истории, отправка сообщений, resolve/join.
// Пагинация диалогов повторяет схему MessagesGetDialogs с offset-триплетом
// (date, id, peer) и сбором access_hash из сопутствующих сущностей.

package gotdclient

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	rt "telegram-linkgrabber/internal/infra/runtime"
	tgiface "telegram-linkgrabber/internal/telegram"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

const (
	dialogFetchWaitMinMs = 500
	dialogFetchWaitMaxMs = 1500
	dialogFetchPageLimit = 100
)

var errDialogsNotModified = errors.New("dialogs not modified")

// Dialogs возвращает до limit диалогов аккаунта, постранично выгружая список.
func (c *Client) Dialogs(ctx context.Context, limit int) ([]tgiface.Dialog, error) {
	if limit <= 0 {
		limit = dialogFetchPageLimit
	}
	var out []tgiface.Dialog
	err := c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		dialogs, err := fetchDialogs(opCtx, api, limit)
		if err != nil {
			return err
		}
		out = mapDialogs(dialogs, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fetchDialogs выгружает до limit диалогов через MessagesGetDialogs.
// Между страницами выдерживается случайная пауза, чтобы не провоцировать флуд-контроль.
func fetchDialogs(ctx context.Context, api *tg.Client, limit int) (*tg.MessagesDialogs, error) {
	result := &tg.MessagesDialogs{}

	offsetDate := 0
	offsetID := 0
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	userHashes := make(map[int64]int64)
	channelHashes := make(map[int64]int64)

	for len(result.Dialogs) < limit {
		resp, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogFetchPageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("MessagesGetDialogs: %w", err)
		}

		batch, err := normalizeDialogsResponse(resp)
		if err != nil {
			if errors.Is(err, errDialogsNotModified) {
				return result, nil
			}
			return nil, err
		}
		if len(batch.Dialogs) == 0 {
			break
		}

		result.Dialogs = append(result.Dialogs, batch.Dialogs...)
		result.Messages = append(result.Messages, batch.Messages...)
		result.Chats = append(result.Chats, batch.Chats...)
		result.Users = append(result.Users, batch.Users...)

		updateHashesFromBatch(batch, userHashes, channelHashes)

		lastDialog := batch.Dialogs[len(batch.Dialogs)-1]
		prevOffsetDate := offsetDate
		prevOffsetID := offsetID

		if dlg, ok := lastDialog.(*tg.Dialog); ok {
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = dialogPeerToInput(dlg.Peer, userHashes, channelHashes)
		} else {
			offsetPeer = &tg.InputPeerEmpty{}
		}

		if offsetDate == 0 {
			offsetDate = prevOffsetDate
		}
		if offsetID == 0 {
			offsetID = prevOffsetID
		}

		if len(batch.Dialogs) < dialogFetchPageLimit {
			break
		}

		rt.WaitRandomTimeMs(ctx, dialogFetchWaitMinMs, dialogFetchWaitMaxMs)
	}

	return result, nil
}

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, fmt.Errorf("unexpected dialogs response: %T", resp)
	}
}

func updateHashesFromBatch(batch *tg.MessagesDialogs, userHashes, channelHashes map[int64]int64) {
	for _, entity := range batch.Users {
		if user, ok := entity.(*tg.User); ok {
			userHashes[user.ID] = user.AccessHash
		}
	}
	for _, entity := range batch.Chats {
		if channel, ok := entity.(*tg.Channel); ok {
			channelHashes[channel.ID] = channel.AccessHash
		}
	}
}

func messageDate(messages []tg.MessageClass, id int) int {
	for _, msg := range messages {
		switch item := msg.(type) {
		case *tg.Message:
			if item.ID == id {
				return item.Date
			}
		case *tg.MessageService:
			if item.ID == id {
				return item.Date
			}
		}
	}
	return 0
}

func dialogPeerToInput(peer tg.PeerClass, userHashes, channelHashes map[int64]int64) tg.InputPeerClass {
	switch entity := peer.(type) {
	case *tg.PeerUser:
		return &tg.InputPeerUser{UserID: entity.UserID, AccessHash: userHashes[entity.UserID]}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: entity.ChatID}
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: entity.ChannelID, AccessHash: channelHashes[entity.ChannelID]}
	default:
		return &tg.InputPeerEmpty{}
	}
}

// mapDialogs переводит сырой список в DTO границы, раскрывая сущности по peer.
func mapDialogs(raw *tg.MessagesDialogs, limit int) []tgiface.Dialog {
	users := make(map[int64]*tg.User)
	for _, entity := range raw.Users {
		if u, ok := entity.(*tg.User); ok {
			users[u.ID] = u
		}
	}
	chats := make(map[int64]*tg.Chat)
	channels := make(map[int64]*tg.Channel)
	for _, entity := range raw.Chats {
		switch item := entity.(type) {
		case *tg.Chat:
			chats[item.ID] = item
		case *tg.Channel:
			channels[item.ID] = item
		}
	}

	out := make([]tgiface.Dialog, 0, len(raw.Dialogs))
	for _, d := range raw.Dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		switch peer := dlg.Peer.(type) {
		case *tg.PeerUser:
			u, found := users[peer.UserID]
			if !found {
				continue
			}
			title, _ := u.GetFirstName()
			username, _ := u.GetUsername()
			out = append(out, tgiface.Dialog{
				Kind: tgiface.PeerUser, ID: u.ID, AccessHash: u.AccessHash,
				Title: title, Username: username,
			})
		case *tg.PeerChat:
			ch, found := chats[peer.ChatID]
			if !found {
				continue
			}
			out = append(out, tgiface.Dialog{Kind: tgiface.PeerChat, ID: ch.ID, Title: ch.Title})
		case *tg.PeerChannel:
			ch, found := channels[peer.ChannelID]
			if !found {
				continue
			}
			username, _ := ch.GetUsername()
			out = append(out, tgiface.Dialog{
				Kind: tgiface.PeerChannel, ID: ch.ID, AccessHash: ch.AccessHash,
				Title: ch.Title, Username: username, Broadcast: ch.Broadcast,
			})
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// inputPeer переводит DTO диалога обратно в InputPeerClass.
func inputPeer(peer tgiface.Dialog) tg.InputPeerClass {
	switch peer.Kind {
	case tgiface.PeerUser:
		return &tg.InputPeerUser{UserID: peer.ID, AccessHash: peer.AccessHash}
	case tgiface.PeerChat:
		return &tg.InputPeerChat{ChatID: peer.ID}
	case tgiface.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: peer.ID, AccessHash: peer.AccessHash}
	default:
		return &tg.InputPeerEmpty{}
	}
}

// History читает до limit сообщений истории peer, начиная с offsetID (0 — с конца).
func (c *Client) History(ctx context.Context, peer tgiface.Dialog, limit, offsetID int) ([]tgiface.Message, error) {
	var out []tgiface.Message
	err := c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		resp, err := api.MessagesGetHistory(opCtx, &tg.MessagesGetHistoryRequest{
			Peer:     inputPeer(peer),
			OffsetID: offsetID,
			Limit:    limit,
		})
		if err != nil {
			return fmt.Errorf("MessagesGetHistory: %w", err)
		}

		var raw []tg.MessageClass
		switch data := resp.(type) {
		case *tg.MessagesMessages:
			raw = data.Messages
		case *tg.MessagesMessagesSlice:
			raw = data.Messages
		case *tg.MessagesChannelMessages:
			raw = data.Messages
		case *tg.MessagesMessagesNotModified:
			return nil
		default:
			return fmt.Errorf("unexpected history response: %T", resp)
		}

		out = make([]tgiface.Message, 0, len(raw))
		for _, m := range raw {
			msg, ok := m.(*tg.Message)
			if !ok || msg.Message == "" {
				continue
			}
			out = append(out, tgiface.Message{
				ID:   msg.ID,
				Date: time.Unix(int64(msg.Date), 0),
				Text: msg.Message,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage отправляет текст в указанный диалог.
func (c *Client) SendMessage(ctx context.Context, peer tgiface.Dialog, text string) error {
	return c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		_, err := api.MessagesSendMessage(opCtx, &tg.MessagesSendMessageRequest{
			Peer:     inputPeer(peer),
			Message:  text,
			RandomID: rand.Int64(), // #nosec G404 — требуется лишь уникальность в рамках сессии
		})
		return err
	})
}

// ResolveUsername находит канал/пользователя по публичному имени.
func (c *Client) ResolveUsername(ctx context.Context, username string) (*tgiface.Dialog, error) {
	var out *tgiface.Dialog
	err := c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		resolved, err := api.ContactsResolveUsername(opCtx, &tg.ContactsResolveUsernameRequest{
			Username: username,
		})
		if err != nil {
			return fmt.Errorf("ContactsResolveUsername: %w", err)
		}

		switch peer := resolved.Peer.(type) {
		case *tg.PeerUser:
			for _, entity := range resolved.Users {
				if u, ok := entity.(*tg.User); ok && u.ID == peer.UserID {
					name, _ := u.GetUsername()
					first, _ := u.GetFirstName()
					out = &tgiface.Dialog{
						Kind: tgiface.PeerUser, ID: u.ID, AccessHash: u.AccessHash,
						Title: first, Username: name,
					}
					return nil
				}
			}
		case *tg.PeerChannel:
			for _, entity := range resolved.Chats {
				if ch, ok := entity.(*tg.Channel); ok && ch.ID == peer.ChannelID {
					name, _ := ch.GetUsername()
					out = &tgiface.Dialog{
						Kind: tgiface.PeerChannel, ID: ch.ID, AccessHash: ch.AccessHash,
						Title: ch.Title, Username: name, Broadcast: ch.Broadcast,
					}
					return nil
				}
			}
		}
		return errors.Errorf("username %q resolved to unsupported peer", username)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// JoinInvite вступает в чат по инвайт-хэшу.
func (c *Client) JoinInvite(ctx context.Context, hash string) error {
	return c.do(ctx, func(opCtx context.Context, api *tg.Client) error {
		_, err := api.MessagesImportChatInvite(opCtx, hash)
		return err
	})
}
