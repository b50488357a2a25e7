// Command fake-openai runs a local OpenAI-compatible chat completions server
// for exercising the relay without a real provider account.
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/goverture/chatrelay/fake-openai/handlers"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}
	port = ":" + port

	mux := http.NewServeMux()
	mux.Handle("/v1/chat/completions", &handlers.CompletionHandler{})

	log.Printf("Starting fake OpenAI server on http://localhost%s", port)
	log.Printf("Use this as your OPENROUTER_BASE_URL: http://localhost%s/v1", port)
	log.Fatal(http.ListenAndServe(port, mux))
}
