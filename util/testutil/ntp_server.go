package testutil

import (
	"encoding/binary"
	"net"
	"sync/atomic"
	"time"

	"github.com/APTrust/evidence-services/constants"
)

// NTPResponder builds the reply to an NTP request. Returning nil
// sends nothing, which looks like a timeout to the client.
type NTPResponder func(request []byte) []byte

// NTPServer is a UDP server on localhost that answers NTP requests
// through its responder.
type NTPServer struct {
	Addr      string
	conn      *net.UDPConn
	requests  int32
	responder NTPResponder
}

func NewNTPServer(responder NTPResponder) *NTPServer {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		panic(err)
	}
	server := &NTPServer{
		Addr:      conn.LocalAddr().String(),
		conn:      conn,
		responder: responder,
	}
	go server.serve()
	return server
}

func (s *NTPServer) serve() {
	buf := make([]byte, 512)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		atomic.AddInt32(&s.requests, 1)
		request := append([]byte(nil), buf[:n]...)
		if reply := s.responder(request); reply != nil {
			s.conn.WriteToUDP(reply, addr)
		}
	}
}

// Requests returns the number of requests the server has received.
func (s *NTPServer) Requests() int {
	return int(atomic.LoadInt32(&s.requests))
}

func (s *NTPServer) Close() {
	s.conn.Close()
}

// NTPReply returns a 48-byte NTP reply whose transmit timestamp
// encodes ts in whole seconds.
func NTPReply(ts time.Time) []byte {
	reply := make([]byte, constants.NTPPacketSize)
	reply[0] = 0x1C
	seconds := uint32(ts.Unix() + constants.NTPEpochOffset)
	offset := constants.NTPTransmitOffset
	binary.BigEndian.PutUint32(reply[offset:offset+4], seconds)
	return reply
}

// NTPTimeResponder answers every request with ts.
func NTPTimeResponder(ts time.Time) NTPResponder {
	return func(request []byte) []byte {
		return NTPReply(ts)
	}
}

// NTPSilentResponder never answers.
func NTPSilentResponder() NTPResponder {
	return func(request []byte) []byte {
		return nil
	}
}

// NTPShortResponder answers with a truncated packet.
func NTPShortResponder(size int) NTPResponder {
	return func(request []byte) []byte {
		return make([]byte, size)
	}
}
