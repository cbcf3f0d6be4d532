package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"noteswap/internal/ledger"
	"noteswap/internal/note"
)

// OrderHandler reacts to a proven swap transaction handed over by a peer.
type OrderHandler func(senderID string, order *ledger.ProvenTransaction) error

// NoteHandler reacts to a full note delivered off-chain.
type NoteHandler func(senderID string, n *note.Note) error

// Node represents a party or matcher endpoint in the network.
type Node struct {
	ID        string
	Address   string
	Peers     map[string]string // Map of Node ID to its address
	server    *http.Server
	waitGroup *sync.WaitGroup

	handlerMutex sync.Mutex
	onOrder      OrderHandler
	onNote       NoteHandler
}

// NewNode creates and initializes a new Node.
func NewNode(id, address string, peers map[string]string, wg *sync.WaitGroup) *Node {
	return &Node{
		ID:        id,
		Address:   address,
		Peers:     peers,
		waitGroup: wg,
	}
}

// OnOrder installs the handler for incoming swap-note orders.
func (n *Node) OnOrder(h OrderHandler) {
	n.handlerMutex.Lock()
	defer n.handlerMutex.Unlock()
	n.onOrder = h
}

// OnNote installs the handler for incoming note handoffs.
func (n *Node) OnNote(h NoteHandler) {
	n.handlerMutex.Lock()
	defer n.handlerMutex.Unlock()
	n.onNote = h
}

// messageHandler is the HTTP handler for receiving messages.
// It decodes the message envelope and then processes the payload based on its type.
func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		log.Printf("[%s] Received a bad request: %v", n.ID, err)
		return
	}

	log.Printf("[%s] Received message of type '%s'", n.ID, msg.Type)

	switch msg.Type {
	case "order_submit":
		var payload OrderSubmitPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Printf("[%s] Error unmarshalling OrderSubmitPayload: %v", n.ID, err)
			http.Error(w, "Malformed order", http.StatusBadRequest)
			return
		}
		if err := n.handleOrder(payload); err != nil {
			log.Printf("[%s] Rejected order from %s: %v", n.ID, payload.SenderID, err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

	case "note_handoff":
		var payload NoteHandoffPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Printf("[%s] Error unmarshalling NoteHandoffPayload: %v", n.ID, err)
			http.Error(w, "Malformed note", http.StatusBadRequest)
			return
		}
		if err := n.handleNote(payload); err != nil {
			log.Printf("[%s] Rejected note from %s: %v", n.ID, payload.SenderID, err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

	case "simple_text":
		var textPayload SimpleTextMessage
		if err := json.Unmarshal(msg.Payload, &textPayload); err != nil {
			log.Printf("[%s] Error unmarshalling SimpleTextMessage payload: %v", n.ID, err)
			return
		}
		log.Printf("    -> Text Message: '%s'", textPayload.Content)

	default:
		log.Printf("[%s] Received unknown message type: %s", n.ID, msg.Type)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Message received")
}

func (n *Node) handleOrder(payload OrderSubmitPayload) error {
	n.handlerMutex.Lock()
	h := n.onOrder
	n.handlerMutex.Unlock()
	if h == nil {
		return fmt.Errorf("node does not accept orders")
	}
	if payload.Order == nil {
		return fmt.Errorf("order carries no proven transaction")
	}
	return h(payload.SenderID, payload.Order)
}

func (n *Node) handleNote(payload NoteHandoffPayload) error {
	n.handlerMutex.Lock()
	h := n.onNote
	n.handlerMutex.Unlock()
	if h == nil {
		return fmt.Errorf("node does not accept note handoffs")
	}
	if payload.Note == nil {
		return fmt.Errorf("handoff carries no note")
	}
	return h(payload.SenderID, payload.Note)
}

// SubmitOrder hands a proven swap transaction to a peer, typically a
// matcher.
func (n *Node) SubmitOrder(targetID string, order *ledger.ProvenTransaction) error {
	return n.SendMessage(targetID, "order_submit", OrderSubmitPayload{
		SenderID: n.ID,
		Order:    order,
	})
}

// HandoffNote delivers a full note to a peer off-chain.
func (n *Node) HandoffNote(targetID string, nt *note.Note) error {
	return n.SendMessage(targetID, "note_handoff", NoteHandoffPayload{
		SenderID: n.ID,
		Note:     nt,
	})
}

// StartServer starts the node's HTTP server in a new goroutine.
// It signals on the 'ready' channel once the server is actively listening.
func (n *Node) StartServer(ready chan<- struct{}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", n.messageHandler)

	n.server = &http.Server{
		Addr:    n.Address,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		log.Fatalf("[%s] failed to listen: %v", n.ID, err)
	}

	n.waitGroup.Add(1)
	go func() {
		defer n.waitGroup.Done()
		log.Printf("[%s] Server starting on %s", n.ID, n.Address)

		// Signal that the server is up and ready
		ready <- struct{}{}

		if err := n.server.Serve(listener); err != http.ErrServerClosed {
			log.Fatalf("[%s] Server failed: %v", n.ID, err)
		}
		log.Printf("[%s] Server stopped.", n.ID)
	}()
}

// Shutdown stops the node's HTTP server.
func (n *Node) Shutdown() error {
	if n.server == nil {
		return nil
	}
	return n.server.Close()
}

// SendMessage sends a message to another node in the network.
// The payload can be any struct that is marshallable to JSON.
func (n *Node) SendMessage(targetID, messageType string, payload interface{}) error {
	targetAddress, ok := n.Peers[targetID]
	if !ok {
		return fmt.Errorf("peer '%s' not found in directory", targetID)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	msg := Message{
		Type:     messageType,
		Payload:  payloadBytes,
		SenderID: n.ID,
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message envelope: %v", err)
	}

	log.Printf("[%s] Sending message of type '%s' to %s at %s", n.ID, messageType, targetID, targetAddress)
	req, err := http.NewRequest("POST", "http://"+targetAddress+"/message", bytes.NewBuffer(messageBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned non-OK status: %s", resp.Status)
	}

	return nil
}
