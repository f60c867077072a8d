package main

// Response bodies carry the Arabic text; logs use the English equivalent.
const (
	MsgMissingImage  = "لم يتم إرسال صورة"
	MsgDecodeFailure = "فشل في قراءة الصورة"
	MsgImageTooLarge = "حجم الصورة أكبر من الحد المسموح"
	MsgInternalError = "خطأ داخلي في الخادم"

	LogMissingImage  = "no image was sent"
	LogDecodeFailure = "failed to read the image"
	LogImageTooLarge = "image exceeds the upload limit"
	LogInternalError = "internal server error"
)
