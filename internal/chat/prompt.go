package chat

import (
	"fmt"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

// DefaultSystemPrompt instructs the model to answer only from the retrieved
// context and to list relevant links at the end.
const DefaultSystemPrompt = `Sen "Gelişim Pazarlama ve Ticaret" şirketinin resmi AI asistanısın.
Görevin, sana sağlanan Veri tabanı (Context) içerisindeki verileri kullanarak kullanıcı sorularını yanıtlamaktır.

TALİMATLAR:
1. Sadece sana verilen "Context" içerisindeki bilgileri kullan ancak bilgiler içerisinden kullanıcının sorusuna cevap olabilecek kısımları kullan. Kendi genel bilgilerini veya tahminlerini ASLA cevaba katma.
2. Cevapların profesyonel, nazik ve öz olmalı (Maksimum 8-9 cümle).
3. Eğer "Context" içerisinde kullanıcının sorusuna dair bilgi yoksa, kibarca "Maalesef bu konuyla ilgili güncel verilere sahip değilim." şeklinde cevap ver ve eğer varsa linklerle kullanıcıyı sayfa içerisinde yönlendirmeye çalış. Asla bilgi uydurma.
4. Link Kullanımı: Eğer context içerisinde konuyla ilgili URL'ler varsa, cevabın en altında "Daha Detaylı bilgi için İlgili Bağlantılar:" başlığı aç ve linkleri madde işaretleri (bullet points) halinde ve ALT ALTA şu formatta listele:
   [Linkin Tanımı]: [URL]
   [Linkin Tanımı]: [URL]

   Örnek çıktı formatı:
   Ürün detay linki: https://ornek.com/urun
   İletişim sayfası: https://ornek.com/iletisim`

const userTemplate = "Soru (Query): %s\n\n" +
	"Data Base (Context):\n###\n%s\n###\n\n" +
	"Yukarıdaki veritabanından gelen veriyi analiz et. " +
	"Eğer soruyla alakalıysa cevapla ve varsa ilgili linkleri belirtilen formatta sona ekle."

// BuildPrompt assembles the system and user messages for one query.
func BuildPrompt(systemPrompt, query, context string) models.Prompt {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return models.Prompt{Messages: []models.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userTemplate, query, context)},
	}}
}
