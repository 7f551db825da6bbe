package main

import (
	"fmt"
	"net/http"
)

func main() {
	http.HandleFunc("/api/verify", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"verdict":"unverified","score":0.5}`)
		fmt.Println("Log: Alguém verificou um claim no upstream burrão")
	})
	fmt.Println("Upstream de teste rodando em http://localhost:8082")
	err := http.ListenAndServe(":8082", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
