package dhan

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"exchange/internal/domain"
)

// Inbound frames start with an 8-byte little-endian header. Byte 0 carries
// the feed response code; for quote packets bytes 4..7 carry the instrument
// id as an int32.
const (
	headerSize = 8

	codeQuote      = 8
	codeDisconnect = 50

	depthLevels    = 5
	depthLevelSize = 20
	depthOffset    = 50
)

// EventKind discriminates decoded feed events.
type EventKind int

const (
	EventQuote EventKind = iota
	EventDisconnect
)

// FeedEvent is one decoded inbound frame: either a price tick or a vendor
// disconnect notice.
type FeedEvent struct {
	Kind           EventKind
	Quote          domain.MarketQuote
	DisconnectCode uint16
}

// DecodeFrame parses a raw inbound frame. Unknown response codes and
// truncated frames return a wrapped ErrProtocol; callers log and drop them
// without touching connection state.
func DecodeFrame(data []byte) (FeedEvent, error) {
	if len(data) < headerSize {
		return FeedEvent{}, fmt.Errorf("%w: frame shorter than header (%d bytes)", domain.ErrProtocol, len(data))
	}

	switch code := data[0]; code {
	case codeDisconnect:
		if len(data) < headerSize+2 {
			return FeedEvent{}, fmt.Errorf("%w: disconnect frame missing reason code", domain.ErrProtocol)
		}
		return FeedEvent{
			Kind:           EventDisconnect,
			DisconnectCode: binary.LittleEndian.Uint16(data[headerSize:]),
		}, nil

	case codeQuote:
		quote, err := decodeQuote(data)
		if err != nil {
			return FeedEvent{}, err
		}
		return FeedEvent{Kind: EventQuote, Quote: quote}, nil

	default:
		return FeedEvent{}, fmt.Errorf("%w: unhandled feed response code %d", domain.ErrProtocol, code)
	}
}

// Quote packet layout after the header, all little-endian:
//
//	 8  float32  latest traded price
//	12  int16    last traded quantity
//	14  int32    last trade time
//	18  float32  average trade price
//	22  int32    volume
//	26  int32    total sell quantity
//	30  int32    total buy quantity
//	34  float32  day open
//	38  float32  day close
//	42  float32  day high
//	46  float32  day low
//	50  5 x 20-byte depth levels:
//	    int32 bid qty, int32 ask qty, int16 bid orders, int16 ask orders,
//	    float32 bid price, float32 ask price
//
// Depth is optional; packets truncated before offset 50 still yield a valid
// quote and the crossing price falls back to the last traded price.
func decodeQuote(data []byte) (domain.MarketQuote, error) {
	if len(data) < headerSize+4 {
		return domain.MarketQuote{}, fmt.Errorf("%w: quote frame truncated (%d bytes)", domain.ErrProtocol, len(data))
	}

	quote := domain.MarketQuote{
		InstrumentID:      strconv.Itoa(int(int32(binary.LittleEndian.Uint32(data[4:8])))),
		LatestTradedPrice: float64(readFloat32(data, 8)),
	}
	if len(data) >= depthOffset {
		quote.LastTradedQuantity = int64(int16(binary.LittleEndian.Uint16(data[12:14])))
		quote.LastTradeTime = int64(int32(binary.LittleEndian.Uint32(data[14:18])))
		quote.AverageTradePrice = float64(readFloat32(data, 18))
		quote.Volume = int64(int32(binary.LittleEndian.Uint32(data[22:26])))
		quote.TotalSellQuantity = int64(int32(binary.LittleEndian.Uint32(data[26:30])))
		quote.TotalBuyQuantity = int64(int32(binary.LittleEndian.Uint32(data[30:34])))
		quote.DayOpen = float64(readFloat32(data, 34))
		quote.DayClose = float64(readFloat32(data, 38))
		quote.DayHigh = float64(readFloat32(data, 42))
		quote.DayLow = float64(readFloat32(data, 46))
	}

	for level := 0; level < depthLevels; level++ {
		base := depthOffset + level*depthLevelSize
		if len(data) < base+depthLevelSize {
			break
		}
		quote.Depth = append(quote.Depth, domain.DepthLevel{
			BidQuantity: int64(int32(binary.LittleEndian.Uint32(data[base : base+4]))),
			AskQuantity: int64(int32(binary.LittleEndian.Uint32(data[base+4 : base+8]))),
			BidOrders:   int32(int16(binary.LittleEndian.Uint16(data[base+8 : base+10]))),
			AskOrders:   int32(int16(binary.LittleEndian.Uint16(data[base+10 : base+12]))),
			BidPrice:    float64(readFloat32(data, base+12)),
			AskPrice:    float64(readFloat32(data, base+16)),
		})
	}
	if len(quote.Depth) > 0 {
		quote.BestBidPrice = quote.Depth[0].BidPrice
		quote.BestAskPrice = quote.Depth[0].AskPrice
	}
	return quote, nil
}

func readFloat32(data []byte, offset int) float32 {
	if len(data) < offset+4 {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset : offset+4]))
}
