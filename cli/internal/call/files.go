package call

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/Huddle/cli/internal/datachannel"
	"github.com/BioHazard786/Huddle/cli/internal/files"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/cli/internal/utils"
)

// maxParallelSends bounds how many peers read the file at once.
const maxParallelSends = 4

type fileKey struct {
	peer string
	id   string
}

type incomingFile struct {
	file     *os.File
	transfer *Transfer
	received int64
}

// SendFile streams a file to every peer with an open data channel. Each
// peer gets its own reader so a slow peer only holds back itself.
func (m *Manager) SendFile(ctx context.Context, path string) (Transfer, error) {
	info, err := files.Validate(path)
	if err != nil {
		return Transfer{}, opError("send file", err)
	}

	m.mu.Lock()
	if _, err := m.requireRoomLocked("send file"); err != nil {
		m.mu.Unlock()
		return Transfer{}, err
	}
	if m.sending {
		m.mu.Unlock()
		return Transfer{}, opError("send file", ErrTransferInProgress)
	}
	channels := m.openChannelsLocked()
	if len(channels) == 0 {
		m.mu.Unlock()
		return Transfer{}, opError("send file", ErrChannelNotOpen)
	}
	t := &Transfer{
		ID:        uuid.NewString(),
		Name:      info.Name,
		Size:      info.Size,
		Direction: Outgoing,
		Peer:      fmt.Sprintf("%d peers", len(channels)),
		Path:      info.Path,
		Total:     info.Size * int64(len(channels)),
		Status:    TransferActive,
	}
	if len(channels) == 1 {
		for id := range channels {
			t.Peer = displayName(m.peers[id].name)
		}
	}
	m.transfers = append(m.transfers, t)
	m.sending = true
	start := datachannel.FileStart{
		ID:       t.ID,
		Name:     info.Name,
		Size:     uint64(info.Size),
		MimeType: info.Type,
		SenderID: m.selfID,
		Sender:   m.opts.Name,
	}
	m.mu.Unlock()
	m.notify()

	log.Info().Str("file", info.Name).Int("peers", len(channels)).Msg("Sending file")

	var g errgroup.Group
	g.SetLimit(maxParallelSends)
	for peerID, dc := range channels {
		g.Go(func() error {
			if err := m.sendFileTo(ctx, dc, info.Path, start, t.ID); err != nil {
				return &Error{Op: "send file", Peer: peerID, Err: err}
			}
			return nil
		})
	}
	err = g.Wait()

	m.mu.Lock()
	m.sending = false
	if err != nil {
		t.Status = TransferFailed
		t.Err = err.Error()
	} else {
		t.Status = TransferComplete
		m.messages = append(m.messages, Message{
			ID:        t.ID,
			Kind:      KindFile,
			SenderID:  m.selfID,
			Sender:    m.opts.Name,
			Text:      fmt.Sprintf("Sent file: %s (%s)", t.Name, utils.FormatSize(t.Size)),
			Timestamp: time.Now(),
		})
	}
	out := *t
	m.mu.Unlock()
	m.notify()

	return out, err
}

func (m *Manager) sendFileTo(ctx context.Context, dc peer.DataChannel, path string, start datachannel.FileStart, id string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	low := make(chan struct{}, 1)
	dc.SetBufferedAmountLowThreshold(utils.LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case low <- struct{}{}:
		default:
		}
	})

	frame, err := datachannel.Encode(datachannel.TypeFileStart, start)
	if err != nil {
		return err
	}
	if err := dc.Send(frame); err != nil {
		return err
	}

	buf := make([]byte, utils.ChunkSize)
	var offset uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !dc.Open() {
			return ErrChannelNotOpen
		}
		if dc.BufferedAmount() > utils.HighWaterMark {
			if err := waitForWindow(ctx, low); err != nil {
				return err
			}
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			frame, err := datachannel.Encode(datachannel.TypeFileChunk, datachannel.FileChunk{
				ID:     id,
				Offset: offset,
				Bytes:  buf[:n],
			})
			if err != nil {
				return err
			}
			if err := dc.Send(frame); err != nil {
				return err
			}
			offset += uint64(n)
			m.progress(id, int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	frame, err = datachannel.Encode(datachannel.TypeFileEnd, datachannel.FileEnd{ID: id})
	if err != nil {
		return err
	}
	return dc.Send(frame)
}

func waitForWindow(ctx context.Context, low <-chan struct{}) error {
	timer := time.NewTimer(utils.SendTimeout)
	defer timer.Stop()
	select {
	case <-low:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBufferTimeout
	}
}

func (m *Manager) progress(id string, n int64) {
	m.mu.Lock()
	for _, t := range m.transfers {
		if t.ID == id {
			t.Done += n
			break
		}
	}
	m.mu.Unlock()
	m.notify()
}

// handleFrame dispatches one data channel message from peerID. Frames for
// a channel arrive on a single goroutine.
func (m *Manager) handleFrame(peerID string, data []byte) {
	frame, err := datachannel.Decode(data)
	if err != nil {
		log.Debug().Err(err).Str("peer_id", peerID).Msg("Ignoring data channel frame")
		return
	}

	switch frame.Type {
	case datachannel.TypeChat:
		var c datachannel.Chat
		if err := frame.DecodePayload(&c); err != nil {
			log.Debug().Err(err).Str("peer_id", peerID).Msg("Ignoring malformed chat frame")
			return
		}
		m.receiveChat(Message{
			ID:        c.ID,
			Kind:      KindChat,
			SenderID:  c.SenderID,
			Sender:    c.Sender,
			Text:      c.Text,
			Timestamp: time.UnixMilli(c.Timestamp),
		})
	case datachannel.TypeFileStart:
		var start datachannel.FileStart
		if err := frame.DecodePayload(&start); err != nil {
			log.Debug().Err(err).Str("peer_id", peerID).Msg("Ignoring malformed file-start frame")
			return
		}
		m.startIncoming(peerID, start)
	case datachannel.TypeFileChunk:
		var chunk datachannel.FileChunk
		if err := frame.DecodePayload(&chunk); err != nil {
			log.Debug().Err(err).Str("peer_id", peerID).Msg("Ignoring malformed file-chunk frame")
			return
		}
		m.writeChunk(peerID, chunk)
	case datachannel.TypeFileEnd:
		var end datachannel.FileEnd
		if err := frame.DecodePayload(&end); err != nil {
			log.Debug().Err(err).Str("peer_id", peerID).Msg("Ignoring malformed file-end frame")
			return
		}
		m.finishIncoming(peerID, end.ID)
	}
	m.notify()
}

func (m *Manager) startIncoming(peerID string, start datachannel.FileStart) {
	m.mu.Lock()
	if _, ok := m.peers[peerID]; !ok || start.ID == "" {
		m.mu.Unlock()
		return
	}
	key := fileKey{peer: peerID, id: start.ID}
	if _, dup := m.incoming[key]; dup {
		m.mu.Unlock()
		return
	}
	dir := m.opts.OutputDir
	sender := start.Sender
	if sender == "" {
		sender = m.peers[peerID].name
	}
	m.mu.Unlock()

	t := &Transfer{
		ID:        start.ID,
		Name:      start.Name,
		Size:      int64(start.Size),
		Direction: Incoming,
		Peer:      displayName(sender),
		Total:     int64(start.Size),
		Status:    TransferActive,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.failIncoming(t, &Error{Op: "receive file", Peer: peerID, Err: err})
		return
	}
	path := utils.UniqueFilename(dir, start.Name)
	f, err := os.Create(path)
	if err != nil {
		m.failIncoming(t, &Error{Op: "receive file", Peer: peerID, Err: err})
		return
	}
	t.Path = path

	m.mu.Lock()
	if _, ok := m.peers[peerID]; !ok {
		m.mu.Unlock()
		f.Close()
		os.Remove(path)
		return
	}
	m.incoming[key] = &incomingFile{file: f, transfer: t}
	m.transfers = append(m.transfers, t)
	m.mu.Unlock()

	log.Info().Str("peer_id", peerID).Str("file", start.Name).Msg("Receiving file")
}

func (m *Manager) failIncoming(t *Transfer, err error) {
	log.Warn().Err(err).Msg("Failed to receive file")
	m.mu.Lock()
	t.Status = TransferFailed
	t.Err = err.Error()
	m.transfers = append(m.transfers, t)
	m.mu.Unlock()
}

func (m *Manager) writeChunk(peerID string, chunk datachannel.FileChunk) {
	m.mu.Lock()
	in, ok := m.incoming[fileKey{peer: peerID, id: chunk.ID}]
	m.mu.Unlock()
	if !ok {
		return
	}

	if _, err := in.file.WriteAt(chunk.Bytes, int64(chunk.Offset)); err != nil {
		log.Warn().Err(err).Str("file", in.transfer.Name).Msg("Failed to write chunk")
		m.mu.Lock()
		m.closeIncomingLocked(fileKey{peer: peerID, id: chunk.ID}, err.Error())
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	in.received += int64(len(chunk.Bytes))
	in.transfer.Done = in.received
	m.mu.Unlock()
}

func (m *Manager) finishIncoming(peerID, id string) {
	key := fileKey{peer: peerID, id: id}

	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.incoming[key]
	if !ok {
		return
	}
	if in.received < in.transfer.Size {
		m.closeIncomingLocked(key, fmt.Sprintf("incomplete: %d of %d bytes", in.received, in.transfer.Size))
		return
	}
	delete(m.incoming, key)
	if err := in.file.Close(); err != nil {
		in.transfer.Status = TransferFailed
		in.transfer.Err = err.Error()
		return
	}
	in.transfer.Status = TransferComplete

	sender := in.transfer.Peer
	m.messages = append(m.messages, Message{
		ID:        id,
		Kind:      KindFile,
		SenderID:  peerID,
		Sender:    sender,
		Text:      fmt.Sprintf("Received file: %s (%s) saved to %s", in.transfer.Name, utils.FormatSize(in.transfer.Size), in.transfer.Path),
		Timestamp: time.Now(),
	})
}

// closeIncomingLocked abandons a partial file and removes it from disk.
func (m *Manager) closeIncomingLocked(key fileKey, reason string) {
	in, ok := m.incoming[key]
	if !ok {
		return
	}
	delete(m.incoming, key)
	in.file.Close()
	os.Remove(in.transfer.Path)
	in.transfer.Status = TransferFailed
	in.transfer.Err = reason
}

func (m *Manager) abortIncomingLocked(peerID string) {
	for key := range m.incoming {
		if key.peer == peerID {
			m.closeIncomingLocked(key, "peer left")
		}
	}
}
