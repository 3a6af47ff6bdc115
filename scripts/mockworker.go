// Mockworker is a fake STT worker used for balancer testing. It speaks the
// worker control protocol: it accepts monitoring-channel requests, replies
// with a configurable overload threshold and capability, and emits periodic
// heartbeats with a configurable utilization. Session requests on data
// connections are acknowledged and the connection is then echoed back.
//
// Usage:
//
//	go run mockworker.go -port 7269 -utilization 0.4 -max-utilization 0.8 -can-overload
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"time"
)

const (
	tagSessionRequest = 0x01
	tagClose          = 0x03
	tagMonitorRequest = 0x04
	tagAccepted       = 0x06
	tagHeartbeat      = 0x07
)

func main() {
	port := flag.Int("port", 7269, "port to listen on")
	utilization := flag.Float64("utilization", 0.25, "utilization reported in heartbeats")
	maxUtilization := flag.Float64("max-utilization", 0.8, "overload threshold sent in the handshake")
	canOverload := flag.Bool("can-overload", false, "advertise overload tolerance")
	interval := flag.Duration("interval", 2*time.Second, "heartbeat interval")
	flag.Parse()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("mock worker listening on %s (utilization=%.2f threshold=%.2f can_overload=%v)",
		ln.Addr(), *utilization, *maxUtilization, *canOverload)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		go serve(conn, *utilization, *maxUtilization, *canOverload, *interval)
	}
}

func serve(conn net.Conn, utilization, maxUtilization float64, canOverload bool, interval time.Duration) {
	defer conn.Close()

	var tag [1]byte
	if _, err := io.ReadFull(conn, tag[:]); err != nil {
		log.Printf("%s: read request: %v", conn.RemoteAddr(), err)
		return
	}

	switch tag[0] {
	case tagMonitorRequest:
		serveMonitor(conn, utilization, maxUtilization, canOverload, interval)
	case tagSessionRequest:
		serveSession(conn)
	default:
		log.Printf("%s: unknown request tag 0x%02x", conn.RemoteAddr(), tag[0])
	}
}

func serveMonitor(conn net.Conn, utilization, maxUtilization float64, canOverload bool, interval time.Duration) {
	log.Printf("%s: monitoring channel opened", conn.RemoteAddr())

	reply := make([]byte, 0, 10)
	reply = append(reply, tagAccepted)
	reply = binary.BigEndian.AppendUint64(reply, math.Float64bits(maxUtilization))
	if canOverload {
		reply = append(reply, 0x01)
	} else {
		reply = append(reply, 0x00)
	}
	if _, err := conn.Write(reply); err != nil {
		log.Printf("%s: handshake reply: %v", conn.RemoteAddr(), err)
		return
	}

	// Watch for the client's close byte concurrently with heartbeating.
	closed := make(chan struct{})
	go func() {
		var b [1]byte
		for {
			if _, err := io.ReadFull(conn, b[:]); err != nil {
				close(closed)
				return
			}
			if b[0] == tagClose {
				log.Printf("%s: client closed channel", conn.RemoteAddr())
				close(closed)
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := make([]byte, 0, 9)
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			frame = frame[:0]
			frame = append(frame, tagHeartbeat)
			frame = binary.BigEndian.AppendUint64(frame, math.Float64bits(utilization))
			if _, err := conn.Write(frame); err != nil {
				log.Printf("%s: heartbeat: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
}

func serveSession(conn net.Conn) {
	var n [2]byte
	if _, err := io.ReadFull(conn, n[:]); err != nil {
		log.Printf("%s: session request: %v", conn.RemoteAddr(), err)
		return
	}
	language := make([]byte, binary.BigEndian.Uint16(n[:]))
	if _, err := io.ReadFull(conn, language); err != nil {
		log.Printf("%s: session language: %v", conn.RemoteAddr(), err)
		return
	}
	var verbose [1]byte
	if _, err := io.ReadFull(conn, verbose[:]); err != nil {
		log.Printf("%s: session verbose flag: %v", conn.RemoteAddr(), err)
		return
	}

	log.Printf("%s: session opened (language=%s verbose=%v)",
		conn.RemoteAddr(), language, verbose[0] == 0x01)

	if _, err := conn.Write([]byte{tagAccepted}); err != nil {
		return
	}

	// Echo the session payload back; good enough for plumbing tests.
	io.Copy(conn, conn)
}
