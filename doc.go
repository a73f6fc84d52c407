// Package dggchat is a client for destiny.gg-style chat servers.
//
// A Session keeps one logical connection to the server alive: it dials the
// WebSocket endpoint with the configured credential, decodes inbound frames
// into events, watches for liveness, and reconnects when the transport goes
// away.
//
//	s, err := dggchat.New(dggchat.WithSessionID(os.Getenv("DGG_SID")))
//	if err != nil {
//		return err
//	}
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop(context.Background())
//
//	for ev := range s.Events() {
//		switch ev := ev.(type) {
//		case dggchat.MessageEvent:
//			fmt.Printf("%s: %s\n", ev.Nick, ev.Data)
//		case dggchat.ErrorEvent:
//			log.Printf("server error: %s", ev.Reason)
//		}
//	}
package dggchat
