// Package listener tails minter contract events over a WebSocket
// subscription. The HTTP pipeline does not depend on it; it exists so
// operators can watch on-chain activity that did not originate here.
package listener

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"

	"ethusd-bridge/internal/ethereum"
)

// Event topics of the bridge minter contract.
var (
	mintedTopic = "0x" + hex.EncodeToString(
		ethereum.Keccak256([]byte("Minted(bytes32,uint256,address,bytes32,bytes3,address,uint256)")))
	priceSnapshotTopic = "0x" + hex.EncodeToString(
		ethereum.Keccak256([]byte("PriceSnapshot(bytes32,int256,uint8,uint64,bytes32)")))
)

// MintedEvent is a decoded Minted log. The hold id, beneficiary and
// signer are indexed; amount, ISO hash, currency and timestamp ride in
// the data section.
type MintedEvent struct {
	HoldID       string
	Beneficiary  string
	Signer       string
	Amount       *big.Int
	Iso20022Hash string
	Iso4217      string
	Timestamp    uint64
}

// PriceSnapshotEvent is a decoded PriceSnapshot log. The pair id and
// hold id are indexed.
type PriceSnapshotEvent struct {
	PairID   string
	HoldID   string
	Price    *big.Int
	Decimals uint8
	Ts       uint64
}

// MintListener subscribes to minter logs and dispatches decoded events.
type MintListener struct {
	ws     ethereum.WSClient
	minter string

	// OnMinted and OnPriceSnapshot are invoked per decoded event.
	// Nil handlers fall back to logging.
	OnMinted        func(MintedEvent)
	OnPriceSnapshot func(PriceSnapshotEvent)
}

// NewMintListener creates a listener for the minter contract.
func NewMintListener(ws ethereum.WSClient, minter string) *MintListener {
	return &MintListener{ws: ws, minter: minter}
}

// Run subscribes and dispatches until ctx is canceled or the
// subscription channel closes. Reconnection is the WS client's job.
func (l *MintListener) Run(ctx context.Context) error {
	ch, err := l.ws.SubscribeLogs(ctx, ethereum.LogFilter{Address: l.minter})
	if err != nil {
		return fmt.Errorf("subscribe minter logs: %w", err)
	}
	log.Printf("[listener] watching minter %s", l.minter)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-ch:
			if !ok {
				return nil
			}
			l.dispatch(entry)
		}
	}
}

func (l *MintListener) dispatch(entry ethereum.Log) {
	if len(entry.Topics) == 0 {
		return
	}
	switch {
	case strings.EqualFold(entry.Topics[0], mintedTopic):
		ev, err := decodeMinted(entry)
		if err != nil {
			log.Printf("[listener] bad Minted log: %v", err)
			return
		}
		if l.OnMinted != nil {
			l.OnMinted(ev)
			return
		}
		log.Printf("[listener] Minted: hold %s -> %s amount %s", ev.HoldID, ev.Beneficiary, ev.Amount)
	case strings.EqualFold(entry.Topics[0], priceSnapshotTopic):
		ev, err := decodePriceSnapshot(entry)
		if err != nil {
			log.Printf("[listener] bad PriceSnapshot log: %v", err)
			return
		}
		if l.OnPriceSnapshot != nil {
			l.OnPriceSnapshot(ev)
			return
		}
		log.Printf("[listener] PriceSnapshot: hold %s price %s (decimals %d, ts %d)", ev.HoldID, ev.Price, ev.Decimals, ev.Ts)
	}
}

func decodeMinted(entry ethereum.Log) (MintedEvent, error) {
	if len(entry.Topics) != 4 {
		return MintedEvent{}, fmt.Errorf("want 4 topics, got %d", len(entry.Topics))
	}
	words, err := dataWords(entry.Data, 4)
	if err != nil {
		return MintedEvent{}, err
	}
	return MintedEvent{
		HoldID:       strings.ToLower(entry.Topics[1]),
		Beneficiary:  topicAddress(entry.Topics[2]),
		Signer:       topicAddress(entry.Topics[3]),
		Amount:       new(big.Int).SetBytes(words[0]),
		Iso20022Hash: "0x" + hex.EncodeToString(words[1]),
		Iso4217:      strings.TrimRight(string(words[2][:3]), "\x00"),
		Timestamp:    new(big.Int).SetBytes(words[3]).Uint64(),
	}, nil
}

func decodePriceSnapshot(entry ethereum.Log) (PriceSnapshotEvent, error) {
	if len(entry.Topics) != 3 {
		return PriceSnapshotEvent{}, fmt.Errorf("want 3 topics, got %d", len(entry.Topics))
	}
	words, err := dataWords(entry.Data, 3)
	if err != nil {
		return PriceSnapshotEvent{}, err
	}
	return PriceSnapshotEvent{
		PairID:   strings.ToLower(entry.Topics[1]),
		HoldID:   strings.ToLower(entry.Topics[2]),
		Price:    twosComplement(words[0]),
		Decimals: uint8(new(big.Int).SetBytes(words[1]).Uint64()),
		Ts:       new(big.Int).SetBytes(words[2]).Uint64(),
	}, nil
}

// dataWords decodes hex log data into n 32-byte words.
func dataWords(data string, n int) ([][]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode log data: %w", err)
	}
	if len(raw) < n*32 {
		return nil, fmt.Errorf("log data too short: %d bytes, want %d", len(raw), n*32)
	}
	words := make([][]byte, n)
	for i := 0; i < n; i++ {
		words[i] = raw[i*32 : (i+1)*32]
	}
	return words, nil
}

// topicAddress extracts the address from a padded indexed topic.
func topicAddress(topic string) string {
	raw := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(raw) < 40 {
		return "0x" + raw
	}
	return ethereum.ChecksumAddress("0x" + raw[len(raw)-40:])
}

// twosComplement interprets a 32-byte word as a signed int256.
func twosComplement(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	if len(word) == 32 && word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, max)
	}
	return v
}
