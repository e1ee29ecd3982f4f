package handlers

import (
	"context"

	"imageapi/internal/middleware"
)

type messageKey int

const (
	msgInvalidPrompt messageKey = iota
	msgInvalidBody
	msgMethodNotAllowed
	msgNotFound
	msgRateLimited
	msgNoURL
	msgJobFailed
	msgTimeout
	msgNoRequestID
	msgCancelled
)

var messages = map[string]map[messageKey]string{
	"en": {
		msgInvalidPrompt:    "prompt (string) is required",
		msgInvalidBody:      "invalid request body",
		msgMethodNotAllowed: "Only POST allowed",
		msgNotFound:         "not found",
		msgRateLimited:      "too many requests, try again later",
		msgNoURL:            "No direct URL returned; see raw provider output",
		msgJobFailed:        "Generation failed",
		msgTimeout:          "Timed out waiting for generation result",
		msgNoRequestID:      "Failed to create generation request",
		msgCancelled:        "request cancelled",
	},
	"id": {
		msgInvalidPrompt:    "prompt (string) wajib diisi",
		msgInvalidBody:      "body permintaan tidak valid",
		msgMethodNotAllowed: "Hanya POST yang diizinkan",
		msgNotFound:         "tidak ditemukan",
		msgRateLimited:      "terlalu banyak permintaan, coba lagi nanti",
		msgNoURL:            "Tidak ada URL langsung; lihat keluaran mentah penyedia",
		msgJobFailed:        "Pembuatan gambar gagal",
		msgTimeout:          "Waktu habis menunggu hasil pembuatan gambar",
		msgNoRequestID:      "Gagal membuat permintaan pembuatan gambar",
		msgCancelled:        "permintaan dibatalkan",
	},
}

func message(ctx context.Context, key messageKey) string {
	if table, ok := messages[middleware.LocaleFromContext(ctx)]; ok {
		if msg, ok := table[key]; ok {
			return msg
		}
	}
	return messages["en"][key]
}
