package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"
)

// Request mirrors the server's JSON-line protocol. Only the fields relevant
// to the chosen action are set.
type request struct {
	Type string `json:"type"`

	Account  string `json:"account,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	AskID    string `json:"ask_id,omitempty"`
	BidID    string `json:"bid_id,omitempty"`
	Amount   uint64 `json:"amount,omitempty"`
	Price    uint64 `json:"price,omitempty"`
	Location string `json:"location,omitempty"`
	Method   string `json:"method,omitempty"`

	DeviceID      string `json:"device_id,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	EnergyDelta   int64  `json:"energy_delta,omitempty"`
	GridFrequency uint32 `json:"grid_frequency,omitempty"`
	Voltage       uint32 `json:"voltage,omitempty"`

	PaymentID string `json:"payment_id,omitempty"`
	Proof     string `json:"proof,omitempty"`
	Reason    string `json:"reason,omitempty"`

	Role       string `json:"role,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Capacity   uint32 `json:"capacity,omitempty"`
}

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the trade server")
	account := flag.String("account", "", "Acting account (compulsory for most actions)")
	action := flag.String("action", "", "Operation to perform, e.g. create_ask, match, balance")

	orderID := flag.String("order", "", "Order id")
	askID := flag.String("ask", "", "Ask order id")
	bidID := flag.String("bid", "", "Bid order id")
	amount := flag.Uint64("amount", 0, "Energy amount")
	price := flag.Uint64("price", 0, "Price per unit")
	location := flag.String("location", "", "Grid location")
	method := flag.String("method", "native", "Payment method: native, fiat, stablecoin, external_token")

	deviceID := flag.String("device", "", "Measurement device id")
	delta := flag.Int64("delta", 0, "Energy delta for a measurement")
	freq := flag.Uint("freq", 5000, "Grid frequency in centihertz")
	volt := flag.Uint("volt", 230, "Voltage in volts")

	paymentID := flag.String("payment", "", "Payment id")
	proof := flag.String("proof", "", "External payment proof")
	reason := flag.String("reason", "", "Failure reason")

	role := flag.String("role", "consumer", "Role for register_user")
	deviceType := flag.String("device-type", "smart_meter", "Device type for register_device")
	capacity := flag.Uint("capacity", 0, "Device capacity")

	flag.Parse()

	if *action == "" {
		fmt.Println("Error: -action is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	req := request{
		Type:          *action,
		Account:       *account,
		OrderID:       *orderID,
		AskID:         *askID,
		BidID:         *bidID,
		Amount:        *amount,
		Price:         *price,
		Location:      *location,
		Method:        *method,
		DeviceID:      *deviceID,
		Timestamp:     time.Now().UnixMilli(),
		EnergyDelta:   *delta,
		GridFrequency: uint32(*freq),
		Voltage:       uint32(*volt),
		PaymentID:     *paymentID,
		Proof:         *proof,
		Reason:        *reason,
		Role:          *role,
		DeviceType:    *deviceType,
		Capacity:      uint32(*capacity),
	}

	b, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}
	if _, err := conn.Write(append(b, '\n')); err != nil {
		log.Fatalf("Failed to send request: %v", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	// Pretty-print whatever the server sent back.
	var out map[string]any
	if err := json.Unmarshal(line, &out); err != nil {
		fmt.Printf("%s", line)
		return
	}
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}
