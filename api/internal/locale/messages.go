package locale

import (
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"mathsnap/api/internal/errs"
)

var indonesian = []*i18n.Message{
	{ID: string(errs.InvalidFileType), Other: "Mohon upload file gambar yang valid (JPG, PNG, dll.)"},
	{ID: string(errs.FileTooLarge), Other: "Ukuran file terlalu besar. Maksimal 10MB."},
	{ID: string(errs.NoInput), Other: "Silakan upload gambar atau ketik soal matematika terlebih dahulu"},
	{ID: string(errs.PermissionDenied), Other: "Akses kamera ditolak. Izinkan akses kamera di pengaturan browser."},
	{ID: string(errs.DeviceNotFound), Other: "Kamera tidak ditemukan di perangkat ini."},
	{ID: string(errs.CameraUnknown), Other: "Gagal mengakses kamera: {{.Detail}}"},
	{ID: string(errs.Unauthorized), Other: "Token API tidak valid. Pastikan token inference sudah dikonfigurasi dengan benar."},
	{ID: string(errs.RateLimited), Other: "Terlalu banyak permintaan. Silakan tunggu beberapa saat dan coba lagi."},
	{ID: string(errs.ModelLoading), Other: "Model sedang loading. Silakan tunggu 20-30 detik dan coba lagi."},
	{ID: string(errs.EmptyResponse), Other: "Tidak dapat memproses gambar. Silakan coba lagi dengan gambar yang lebih jelas."},
	{ID: string(errs.TransportUnknown), Other: "Terjadi kesalahan: {{.Detail}}"},
	{ID: string(errs.SolveInFlight), Other: "Soal sebelumnya masih dianalisis. Tunggu sampai selesai."},
	{ID: msgTransportPlain, Other: "Gagal memproses gambar"},
	{ID: msgCameraPlain, Other: "Gagal mengakses kamera"},

	{ID: MsgWelcome, Other: "Kirim foto atau ketik soal matematika, nanti aku jelaskan penyelesaiannya.\nPerintah: /mode verbose|concise, /engine openai|gemini, /clear, /solve"},
	{ID: MsgAnalyzing, Other: "Sedang menganalisis soal..."},
	{ID: MsgPhotoTaken, Other: "Foto diterima."},
	{ID: MsgCleared, Other: "Gambar dihapus."},
	{ID: MsgModeSet, Other: "Mode jawaban: {{.Mode}}"},
	{ID: MsgEngineSet, Other: "Engine: {{.Engine}} ({{.Model}})"},
	{ID: MsgUnknownCmd, Other: "Perintah tidak dikenal"},
	{ID: MsgEngineUsage, Other: "Penggunaan: /engine openai|gemini [model]"},
	{ID: MsgModeUsage, Other: "Penggunaan: /mode verbose|concise"},
}

var english = []*i18n.Message{
	{ID: string(errs.InvalidFileType), Other: "Please upload a valid image file (JPG, PNG, etc.)"},
	{ID: string(errs.FileTooLarge), Other: "File is too large. The limit is 10MB."},
	{ID: string(errs.NoInput), Other: "Upload an image or type a math problem first"},
	{ID: string(errs.PermissionDenied), Other: "Camera access was denied. Allow camera access in your browser settings."},
	{ID: string(errs.DeviceNotFound), Other: "No camera was found on this device."},
	{ID: string(errs.CameraUnknown), Other: "Could not access the camera: {{.Detail}}"},
	{ID: string(errs.Unauthorized), Other: "The inference API token is invalid. Check the token configuration."},
	{ID: string(errs.RateLimited), Other: "Too many requests. Wait a moment and try again."},
	{ID: string(errs.ModelLoading), Other: "The model is loading. Wait 20-30 seconds and try again."},
	{ID: string(errs.EmptyResponse), Other: "Could not process the image. Try again with a clearer picture."},
	{ID: string(errs.TransportUnknown), Other: "Something went wrong: {{.Detail}}"},
	{ID: string(errs.SolveInFlight), Other: "The previous problem is still being analyzed. Wait for it to finish."},
	{ID: msgTransportPlain, Other: "Failed to process the image"},
	{ID: msgCameraPlain, Other: "Could not access the camera"},

	{ID: MsgWelcome, Other: "Send a photo or type a math problem and I will explain the solution.\nCommands: /mode verbose|concise, /engine openai|gemini, /clear, /solve"},
	{ID: MsgAnalyzing, Other: "Analyzing the problem..."},
	{ID: MsgPhotoTaken, Other: "Photo received."},
	{ID: MsgCleared, Other: "Image removed."},
	{ID: MsgModeSet, Other: "Answer mode: {{.Mode}}"},
	{ID: MsgEngineSet, Other: "Engine: {{.Engine}} ({{.Model}})"},
	{ID: MsgUnknownCmd, Other: "Unknown command"},
	{ID: MsgEngineUsage, Other: "Usage: /engine openai|gemini [model]"},
	{ID: MsgModeUsage, Other: "Usage: /mode verbose|concise"},
}
