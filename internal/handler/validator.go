package handler

import (
	"fmt"
	"reflect"
	"strings"

	"campus_chat_server/pkg/enum"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Trans 全局翻译器，HandleParamError 使用
var Trans ut.Translator

// chatRoomTypeTag 聊天室类型校验 tag
const chatRoomTypeTag = "chat_room_type"

// InitTrans 初始化 gin 的校验引擎与翻译器
// locale 为 "zh" 或 "en"，必须在注册路由之前调用，否则自定义 tag 未注册会导致绑定 panic
func InitTrans(locale string) (err error) {
	if binding.Validator == nil {
		binding.Validator = &defaultValidator{validator: validator.New()}
	}

	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	// 报错字段使用 json tag，和前端参数名一致
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err = v.RegisterValidation(chatRoomTypeTag, func(fl validator.FieldLevel) bool {
		return enum.ValidChatRoomType(fl.Field().String())
	}); err != nil {
		return err
	}

	zhT := zh.New()
	enT := en.New()
	// 第一个参数是 fallback
	uni := ut.New(enT, zhT, enT)

	Trans, ok = uni.GetTranslator(locale)
	if !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(v, Trans)
	default:
		err = en_translations.RegisterDefaultTranslations(v, Trans)
	}
	if err != nil {
		return err
	}
	return registerChatRoomTypeTranslation(v, locale)
}

// registerChatRoomTypeTranslation 自定义 tag 的提示文案
func registerChatRoomTypeTranslation(v *validator.Validate, locale string) error {
	text := "{0} must be one of DIRECT, GROUP"
	if locale == "zh" {
		text = "{0}只能是DIRECT或GROUP"
	}
	return v.RegisterTranslation(chatRoomTypeTag, Trans,
		func(t ut.Translator) error {
			return t.Add(chatRoomTypeTag, text, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(chatRoomTypeTag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}

// RemoveTopStruct 去除提示信息中的结构体名前缀
// 例如 "CreateChatRoomRequest.member_ids" -> "member_ids"
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string)
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}

// defaultValidator 实现 binding.StructValidator，binding.Validator 为空时兜底
type defaultValidator struct {
	validator *validator.Validate
}

func (v *defaultValidator) ValidateStruct(obj interface{}) error {
	return v.validator.Struct(obj)
}

func (v *defaultValidator) Engine() interface{} {
	return v.validator
}
