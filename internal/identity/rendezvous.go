package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/PolarWolf314/enseal/internal/secrets"
)

const (
	// RendezvousWindow is how long a set of push channel ids stays valid.
	RendezvousWindow = 5 * time.Minute

	// RendezvousSlots is the number of ids per window. Each id serves one
	// push, so a pair can complete this many pushes per window.
	RendezvousSlots = 4

	rendezvousPrefix = "px-"
)

// rendezvousKey derives the HMAC key both parties share for pushes from
// sender to recipient.
func rendezvousKey(own *secrets.KeyPair, peer *[32]byte) ([]byte, error) {
	shared, err := own.SharedSecret(peer)
	if err != nil {
		return nil, err
	}
	defer secrets.Wipe(shared)

	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, shared, nil, []byte("enseal/v1/push-rendezvous"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func rendezvousID(key []byte, sender, recipient *[32]byte, window int64, slot int) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(sender[:])
	mac.Write(recipient[:])
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(window))
	buf[8] = byte(slot)
	mac.Write(buf[:])
	return rendezvousPrefix + hex.EncodeToString(mac.Sum(nil)[:16])
}

func windowAt(t time.Time) int64 {
	return t.Unix() / int64(RendezvousWindow/time.Second)
}

// listenerIDs returns the ids a recipient listens on at now, in slot order.
func listenerIDs(own *secrets.KeyPair, sender *[32]byte, now time.Time) ([]string, error) {
	key, err := rendezvousKey(own, sender)
	if err != nil {
		return nil, err
	}
	defer secrets.Wipe(key)

	w := windowAt(now)
	ids := make([]string, RendezvousSlots)
	for slot := range ids {
		ids[slot] = rendezvousID(key, sender, own.Public, w, slot)
	}
	return ids, nil
}

// senderIDs returns the ids a sender probes at now: every slot of the
// current window, then every slot of the previous one, which a listener
// that opened just before a window boundary still holds.
func senderIDs(own *secrets.KeyPair, recipient *[32]byte, now time.Time) ([]string, error) {
	key, err := rendezvousKey(own, recipient)
	if err != nil {
		return nil, err
	}
	defer secrets.Wipe(key)

	w := windowAt(now)
	ids := make([]string, 0, 2*RendezvousSlots)
	for _, win := range []int64{w, w - 1} {
		for slot := 0; slot < RendezvousSlots; slot++ {
			ids = append(ids, rendezvousID(key, own.Public, recipient, win, slot))
		}
	}
	return ids, nil
}
